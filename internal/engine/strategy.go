package engine

import (
	"context"
	"sync"

	"github.com/roach88/cleanbook/internal/ir"
)

// MutationTriggered recomputes after every local write, before the write
// call returns. It is the strategy for local media, where nothing else can
// change the collections.
type MutationTriggered struct {
	mu     sync.Mutex
	notify func(Change)
}

func NewMutationTriggered() *MutationTriggered {
	return &MutationTriggered{}
}

func (s *MutationTriggered) Name() string { return "mutation" }

func (s *MutationTriggered) Attach(_ context.Context, notify func(Change)) (func(), error) {
	s.mu.Lock()
	s.notify = notify
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.notify = nil
		s.mu.Unlock()
	}, nil
}

func (s *MutationTriggered) AfterWrite(_ context.Context, kind ir.Kind) {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(Change{Kind: kind, Source: SourceLocal})
	}
}

// Subscriber is a collection that can push snapshots.
// *remote.Collection implements it.
type Subscriber interface {
	Kind() ir.Kind
	Subscribe(ctx context.Context, notify func(error)) (release func())
}

// Subscription reacts to snapshots pushed by remote collections. Writes made
// through the pipeline come back as pushes like anyone else's, so
// AfterWrite does nothing.
type Subscription struct {
	subscribers []Subscriber
}

func NewSubscription(subscribers ...Subscriber) *Subscription {
	return &Subscription{subscribers: subscribers}
}

func (s *Subscription) Name() string { return "subscription" }

func (s *Subscription) Attach(ctx context.Context, notify func(Change)) (func(), error) {
	releases := make([]func(), 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		kind := sub.Kind()
		releases = append(releases, sub.Subscribe(ctx, func(err error) {
			notify(Change{Kind: kind, Source: SourceRemote, Err: err})
		}))
	}

	return func() {
		for _, release := range releases {
			release()
		}
	}, nil
}

func (s *Subscription) AfterWrite(context.Context, ir.Kind) {}
