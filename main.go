package main

import (
	"context"
	"fmt"
	"os"

	"github.com/deltax-data-professor/server/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
