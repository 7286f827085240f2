package main

import (
	"context"
	"fmt"
	"os"

	"go.miragespace.co/scanpipe/cmd/scanpipe"
	"go.miragespace.co/scanpipe/util"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	util.CategorizedHelp()

	if err := scanpipe.App.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
