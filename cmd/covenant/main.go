// Command covenant weaves declared contracts into wrappers around
// existing implementations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/covenant/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "covenant: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
