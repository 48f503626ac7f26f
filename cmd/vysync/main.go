// Package main provides the entry point for the vysync CLI.
package main

import (
	"context"
	"os"

	"github.com/centroplan/vysync/cmd/vysync/app"
)

// Version information populated at build time.
var version = "dev"

func main() {
	application, err := app.New(version)
	if err != nil {
		app.ExitOnError(err)
	}

	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	if err := application.Execute(ctx, os.Args[1:]); err != nil {
		app.ExitOnError(err)
	}
}
