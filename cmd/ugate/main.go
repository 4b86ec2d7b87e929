package main

import (
	"os"

	"github.com/hkuds/ugate/cmd/ugate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
