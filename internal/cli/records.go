package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/cleanbook/internal/app"
	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/mutation"
)

// fieldFlags names the flag and usage for record fields whose flag is not
// simply the field name.
var fieldFlags = map[string]struct{ flag, usage string }{
	"phone":      {"phone", "phone number"},
	"address":    {"address", "street address"},
	"customerId": {"customer", "customer id"},
	"staffId":    {"staff", "staff member id"},
	"service":    {"service", "service from the catalogue (see 'booking services')"},
	"date":       {"date", "ISO-8601 date and time, e.g. 2024-06-01T10:00"},
	"notes":      {"notes", "free-form notes"},
}

// flagFor returns the flag name and usage for field of kind.
func flagFor(kind ir.Kind, field string) (string, string) {
	if ff, ok := fieldFlags[field]; ok {
		return ff.flag, ff.usage
	}
	if field == "name" && kind == ir.KindStaff {
		return field, "staff member name"
	}
	return field, fmt.Sprintf("%s %s", kind, field)
}

// bindFieldFlags registers one flag per settable field of kind. The
// returned function collects the flags the user actually set, so an update
// only touches those fields.
func bindFieldFlags(cmd *cobra.Command, kind ir.Kind) func() ir.Fields {
	names := mutation.FieldNames(kind)
	values := make(map[string]*string, len(names))
	for _, field := range names {
		flag, usage := flagFor(kind, field)
		values[field] = cmd.Flags().String(flag, "", usage)
	}
	return func() ir.Fields {
		fields := ir.Fields{}
		for _, field := range names {
			flag, _ := flagFor(kind, field)
			if cmd.Flags().Changed(flag) {
				fields[field] = *values[field]
			}
		}
		return fields
	}
}

// NewRecordCommand creates the add/update/rm/show/list command group for
// one record kind.
func NewRecordCommand(rootOpts *RootOptions, kind ir.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Manage %s records", kind),
	}

	cmd.AddCommand(newAddCommand(rootOpts, kind))
	cmd.AddCommand(newUpdateCommand(rootOpts, kind))
	cmd.AddCommand(newRemoveCommand(rootOpts, kind))
	cmd.AddCommand(newShowCommand(rootOpts, kind))
	cmd.AddCommand(newRecordListCommand(rootOpts, kind))
	if kind == ir.KindBooking {
		cmd.AddCommand(newServicesCommand(rootOpts))
	}
	return cmd
}

func newServicesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "Print the bookable services",
		Long:  "The catalogue comes from the services config key or CLEANBOOK_SERVICES.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app.App, f *OutputFormatter) error {
				services := a.Pipeline.Services()
				if f.JSON() {
					return f.Success(services)
				}
				for _, s := range services {
					fmt.Fprintln(f.Writer, s)
				}
				return nil
			})
		},
	}
}

// withApp opens the backend for a one-shot command and closes it after fn.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(a *app.App, f *OutputFormatter) error) error {
	a, err := openApp(commandContext(cmd), opts, cmd, slog.LevelWarn, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("close backend", "error", err)
		}
	}()
	return fn(a, newFormatter(opts, cmd))
}

func newAddCommand(opts *RootOptions, kind ir.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: fmt.Sprintf("Create a %s", kind),
		Example: map[ir.Kind]string{
			ir.KindCustomer: `  cleanbook customer add --name Ann --phone 555-0100 --address "1 Main St"`,
			ir.KindStaff:    `  cleanbook staff add --name Bo`,
			ir.KindBooking:  `  cleanbook booking add --customer 1717236000000 --staff 1717236000001 --service "Deep Clean" --date 2024-06-01T10:00`,
		}[kind],
		Args: cobra.NoArgs,
	}
	fields := bindFieldFlags(cmd, kind)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(opts, cmd, func(a *app.App, f *OutputFormatter) error {
			id, err := a.Pipeline.Create(commandContext(cmd), kind, fields())
			if err != nil {
				return f.Fail(ExitFailure, err)
			}
			if f.JSON() {
				return f.Success(map[string]string{"id": string(id)})
			}
			fmt.Fprintf(f.Writer, "Created %s %s\n", kind, id)
			return nil
		})
	}
	return cmd
}

func newUpdateCommand(opts *RootOptions, kind ir.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: fmt.Sprintf("Change fields of a %s", kind),
		Long:  "Only the fields given as flags change; the others keep their current value.",
		Args:  cobra.ExactArgs(1),
	}
	fields := bindFieldFlags(cmd, kind)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		changes := fields()
		if len(changes) == 0 {
			return NewExitError(ExitCommandError, "nothing to update: pass at least one field flag")
		}
		return withApp(opts, cmd, func(a *app.App, f *OutputFormatter) error {
			id := ir.ID(args[0])
			if err := a.Pipeline.Update(commandContext(cmd), kind, id, changes); err != nil {
				return f.Fail(ExitFailure, err)
			}
			if f.JSON() {
				return f.Success(map[string]string{"id": string(id)})
			}
			fmt.Fprintf(f.Writer, "Updated %s %s\n", kind, id)
			return nil
		})
	}
	return cmd
}

func newRemoveCommand(opts *RootOptions, kind ir.Kind) *cobra.Command {
	var yes bool
	long := "Deleting a missing id is not an error."
	if kind != ir.KindBooking {
		long += fmt.Sprintf(" Bookings that reference the %s are kept and shown with placeholder values.", kind)
	}

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: fmt.Sprintf("Delete a %s", kind),
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ir.ID(args[0])
			if !yes && opts.Format == "json" {
				return NewExitError(ExitCommandError, "--yes is required with --format json")
			}
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Delete %s %s? [y/N] ", kind, id))
				if err != nil {
					return WrapExitError(ExitCommandError, "read confirmation", err)
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}
			return withApp(opts, cmd, func(a *app.App, f *OutputFormatter) error {
				if err := a.Pipeline.Delete(commandContext(cmd), kind, id); err != nil {
					return f.Fail(ExitFailure, err)
				}
				if f.JSON() {
					return f.Success(map[string]string{"id": string(id)})
				}
				fmt.Fprintf(f.Writer, "Deleted %s %s\n", kind, id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	return cmd
}

// confirm asks prompt on w and reads one answer line from r. EOF counts as
// no.
func confirm(r io.Reader, w io.Writer, prompt string) (bool, error) {
	fmt.Fprint(w, prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func newShowCommand(opts *RootOptions, kind ir.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: fmt.Sprintf("Print one %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app.App, f *OutputFormatter) error {
				rec, err := a.Pipeline.Fetch(commandContext(cmd), kind, ir.ID(args[0]))
				if err != nil {
					return f.Fail(ExitFailure, err)
				}
				if f.JSON() {
					return f.Success(rec)
				}
				writeRecord(f.Writer, rec)
				return nil
			})
		},
	}
}

func newRecordListCommand(opts *RootOptions, kind ir.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("Print every stored %s", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app.App, f *OutputFormatter) error {
				records := storedRecords(a, kind)
				if f.JSON() {
					return f.Success(records)
				}
				if len(records) == 0 {
					fmt.Fprintf(f.Writer, "No %s records.\n", kind)
					return nil
				}
				writeRecordTable(f.Writer, kind, records)
				return nil
			})
		},
	}
}

func storedRecords(a *app.App, kind ir.Kind) []ir.Record {
	var out []ir.Record
	switch kind {
	case ir.KindCustomer:
		for _, r := range a.Customers.All() {
			out = append(out, r)
		}
	case ir.KindStaff:
		for _, r := range a.Staff.All() {
			out = append(out, r)
		}
	case ir.KindBooking:
		for _, r := range a.Bookings.All() {
			out = append(out, r)
		}
	}
	if out == nil {
		out = []ir.Record{}
	}
	return out
}

func writeRecord(w io.Writer, rec ir.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	switch r := rec.(type) {
	case ir.Customer:
		fmt.Fprintf(tw, "ID:\t%s\nName:\t%s\nPhone:\t%s\nAddress:\t%s\n", r.ID, r.Name, r.Phone, r.Address)
	case ir.Staff:
		fmt.Fprintf(tw, "ID:\t%s\nName:\t%s\n", r.ID, r.Name)
	case ir.Booking:
		fmt.Fprintf(tw, "ID:\t%s\nCustomer:\t%s\nStaff:\t%s\nService:\t%s\nDate:\t%s\n",
			r.ID, r.CustomerID, r.StaffID, r.Service, displayDate(r.Date))
		if r.Notes != "" {
			fmt.Fprintf(tw, "Notes:\t%s\n", r.Notes)
		}
	}
}

func writeRecordTable(w io.Writer, kind ir.Kind, records []ir.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	switch kind {
	case ir.KindCustomer:
		fmt.Fprintln(tw, "ID\tNAME\tPHONE\tADDRESS")
	case ir.KindStaff:
		fmt.Fprintln(tw, "ID\tNAME")
	case ir.KindBooking:
		fmt.Fprintln(tw, "ID\tDATE\tSERVICE\tCUSTOMER\tSTAFF")
	}
	for _, rec := range records {
		switch r := rec.(type) {
		case ir.Customer:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Phone, r.Address)
		case ir.Staff:
			fmt.Fprintf(tw, "%s\t%s\n", r.ID, r.Name)
		case ir.Booking:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Date, r.Service, r.CustomerID, r.StaffID)
		}
	}
}
