package main

import (
	"os"

	"github.com/xerxes-systems/xerxes-bridge/cmd/bridgectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
