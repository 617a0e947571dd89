package app

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cleanbook/internal/config"
	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/remote"
	"github.com/roach88/cleanbook/internal/store"
	"github.com/roach88/cleanbook/internal/testutil"
	"github.com/roach88/cleanbook/internal/view"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestOpen_LocalPersistsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.DB = filepath.Join(t.TempDir(), "cleanbook.db")

	a, err := Open(ctx, cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	cid, err := a.Pipeline.Create(ctx, ir.KindCustomer, ir.Fields{"name": "Ann", "phone": "555", "address": "Main St"})
	require.NoError(t, err)
	_, err = a.Pipeline.Create(ctx, ir.KindBooking, ir.Fields{
		"customerId": string(cid), "service": "Deep Clean", "date": "2024-06-01T10:00",
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(ctx, cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer b.Close()
	rec := testutil.NewProjectionRecorder()
	b.Engine.AddListener(rec)
	require.NoError(t, b.Start(ctx))

	p, ok := rec.Last()
	require.True(t, ok)
	require.Equal(t, view.StateReady, p.State)
	require.Len(t, p.Bookings, 1)
	assert.Equal(t, "Ann", p.Bookings[0].CustomerName)
	assert.Equal(t, view.Unassigned, p.Bookings[0].StaffName)
}

func TestOpen_TimestampIDsStayAboveExisting(t *testing.T) {
	ctx := context.Background()
	medium := store.NewMemoryMedium()
	future := time.Now().Add(24 * time.Hour).UnixMilli()
	seeded := store.NewCollection[ir.Staff](ir.KindStaff, medium, quietLogger())
	require.NoError(t, seeded.Save(ctx, []ir.Staff{{ID: ir.ID(formatMillis(future)), Name: "Bo"}}))

	a, err := Open(ctx, config.Default(), Options{Logger: quietLogger(), Medium: medium})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Start(ctx))

	id, err := a.Pipeline.Create(ctx, ir.KindStaff, ir.Fields{"name": "Cy"})
	require.NoError(t, err)
	assert.Equal(t, formatMillis(future+1), string(id))
}

func TestOpen_InjectedAllocator(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, config.Default(), Options{
		Logger: quietLogger(),
		Medium: store.NewMemoryMedium(),
		IDs:    testutil.NewFixedIDs("c-1"),
	})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Start(ctx))

	id, err := a.Pipeline.Create(ctx, ir.KindCustomer, ir.Fields{"name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, ir.ID("c-1"), id)
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "carrier-pigeon"

	_, err := Open(context.Background(), cfg, Options{Logger: quietLogger()})
	assert.Error(t, err)
}

func TestOpen_Remote(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Backend = config.BackendRemote
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.ResubscribeBackoff = 10 * time.Millisecond

	a, err := Open(ctx, cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer a.Close()

	rec := testutil.NewProjectionRecorder()
	a.Engine.AddListener(rec)
	require.NoError(t, a.Start(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// server-assigned ids
	sid, err := a.Pipeline.Create(ctx, ir.KindStaff, ir.Fields{"name": "Bo"})
	require.NoError(t, err)
	assert.Equal(t, ir.ID("1"), sid)

	_, err = a.Pipeline.Create(ctx, ir.KindBooking, ir.Fields{
		"staffId": string(sid), "service": "Office Clean", "date": "2024-06-01T10:00",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p := a.Engine.Projection()
		return len(p.Bookings) == 1 && p.Bookings[0].StaffName == "Bo"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, view.UnknownCustomer, a.Engine.Projection().Bookings[0].CustomerName)
	assert.Contains(t, rec.Kinds(), ir.KindStaff)
}

func TestOpen_RemoteSharedClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := remote.Dial(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	cfg := config.Default()
	cfg.Backend = config.BackendRemote

	a, err := Open(ctx, cfg, Options{Logger: quietLogger(), Redis: client})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// the caller's client is still usable
	assert.NoError(t, client.Ping(ctx).Err())
}

func formatMillis(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
