package main

import (
	"context"
	"fmt"
	"os"

	"github.com/taleweave/backend/internal/app"
)

func main() {
	ctx := context.Background()

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "taleweave: %v\n", err)
		os.Exit(1)
	}
}
