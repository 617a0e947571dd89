package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cleanbook/internal/app"
	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/view"
)

// dateDisplayLayout renders booking dates for people: weekday, full date,
// short time.
const dateDisplayLayout = "Monday, January 2, 2006 3:04 PM"

// displayDate formats an ISO-8601 booking date for text output. Dates that
// do not parse are shown as entered.
func displayDate(s string) string {
	t, ok := ir.ParseDate(s)
	if !ok {
		return s
	}
	return t.Format(dateDisplayLayout)
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the booking schedule",
		Long: `Print every booking, earliest first, with its customer and staff member.

Bookings whose customer or staff member was deleted are still listed, with
"Unknown Customer", "N/A" and "Unassigned" in place of the missing values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app.App, f *OutputFormatter) error {
				if err := a.Start(commandContext(cmd)); err != nil {
					return WrapExitError(ExitCommandError, "failed to start engine", err)
				}
				return writeProjection(f, a.Engine.Projection())
			})
		},
	}
}

// writeProjection prints p in the formatter's format. An error projection
// is reported as a failure.
func writeProjection(f *OutputFormatter, p view.Projection) error {
	if p.State == view.StateError {
		return f.Fail(ExitFailure, p.Err)
	}
	if f.JSON() {
		return f.Success(p)
	}
	writeBookings(f.Writer, p)
	return nil
}

func writeBookings(w io.Writer, p view.Projection) {
	if p.Empty() {
		fmt.Fprintln(w, "No bookings scheduled.")
		return
	}
	for i, b := range p.Bookings {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", displayDate(b.Date))
		fmt.Fprintf(w, "  Service:   %s\n", b.Service)
		fmt.Fprintf(w, "  Customer:  %s\n", b.CustomerName)
		fmt.Fprintf(w, "  Phone:     %s\n", b.CustomerPhone)
		fmt.Fprintf(w, "  Address:   %s\n", b.CustomerAddress)
		fmt.Fprintf(w, "  Staff:     %s\n", b.StaffName)
		if b.Notes != "" {
			fmt.Fprintf(w, "  Notes:     %s\n", b.Notes)
		}
		fmt.Fprintf(w, "  ID:        %s\n", b.ID)
	}
}

// projectionPrinter streams every published projection. It is an
// engine.Listener.
type projectionPrinter struct {
	f      *OutputFormatter
	logger *slog.Logger
}

func (p *projectionPrinter) OnProjectionChanged(proj view.Projection) {
	if proj.State == view.StateError {
		_ = p.f.Error(ErrorCode(proj.Err), proj.Err.Error(), nil)
		return
	}
	if p.f.JSON() {
		if err := p.f.Success(proj); err != nil {
			p.logger.Warn("write projection", "error", err)
		}
		return
	}
	fmt.Fprintf(p.f.Writer, "== %d booking(s) (update %d) ==\n", len(proj.Bookings), proj.Seq)
	writeBookings(p.f.Writer, proj)
	fmt.Fprintln(p.f.Writer)
}

func (p *projectionPrinter) OnCollectionsChanged(kind ir.Kind) {
	p.f.VerboseLog("%s collection changed", kind)
}
