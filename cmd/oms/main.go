package main

import (
	"os"

	"github.com/rustyeddy/oms/cmd/oms/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
