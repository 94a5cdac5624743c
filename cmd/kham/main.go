// Package main is the kham CLI entry point.
package main

import (
	"context"
	"os"

	"github.com/hyperjump/kham/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
