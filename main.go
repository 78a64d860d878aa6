package main

import (
	"context"
	"fmt"
	"os"

	"vuoksi-trader/cli"
)

func main() {
	rootCmd := cli.NewRootCmd()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
