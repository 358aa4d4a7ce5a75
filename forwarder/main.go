// main package of the callback forwarder.
package main

import (
	"context"
	"os"

	"github.com/chainhook/forwarder/forwarder/cmd"
	"github.com/chainhook/forwarder/internal/process"
)

func main() {
	ctx, cancel := process.SignalContext(context.Background(), os.Interrupt)
	defer cancel()

	root := cmd.New()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
