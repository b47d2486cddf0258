// Command twinimport imports an exported entity graph into a digital-twin
// workspace.
//
// Usage:
//
//	twinimport -b BUCKET -p PATH -w WORKSPACE -c COMPONENT_TYPE [flags]
//	twinimport serve --subscription URL [flags]
//
// A .env file in the working directory, when present, seeds the environment
// (e.g. AWS_REGION, AWS_ENDPOINT, NEO4J_USERNAME).
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error: load .env:", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
