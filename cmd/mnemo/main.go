package main

import (
	"os"

	"github.com/mnemo-sh/mnemo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
