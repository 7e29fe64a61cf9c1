package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	comicdl "github.com/kerbaras/comicdl/cmd/comicdl"
)

func main() {
	if err := comicdl.NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
