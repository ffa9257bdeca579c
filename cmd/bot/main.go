package main

import (
	"context"
	"fmt"
	"os"

	// Embedded tz database for REPORT_TZ on minimal images.
	_ "time/tzdata"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
