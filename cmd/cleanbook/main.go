// Command cleanbook manages the customers, staff and bookings of a small
// cleaning business.
package main

import (
	"context"
	"io"
	"os"

	"github.com/roach88/cleanbook/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return cli.Execute(context.Background(), args, stdin, stdout, stderr)
}
