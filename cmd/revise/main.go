// Command revise runs the filter and revise workflow on a local file.
//
//	revise inspect sales.csv
//	revise apply sales.csv --target SL_Q --percent 10 --mode increase --filter STORE=S001 --out out/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	apperrors "allocator/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for input problems the user can fix and 1 otherwise
func exitCode(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidParameter),
		errors.Is(err, apperrors.ErrUnreadableFormat),
		errors.Is(err, apperrors.ErrNoNumericColumns):
		return 2
	default:
		return 1
	}
}
