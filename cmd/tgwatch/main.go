package main

import (
	"os"

	"github.com/makt28/tgwatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
