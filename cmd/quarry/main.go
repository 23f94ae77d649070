package main

import (
	"os"

	"github.com/quarrydata/quarry/internal/cli"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		os.Exit(1)
	}
}
