package main

import (
	"os"

	"github.com/majorcontext/portico/cmd/portico/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
