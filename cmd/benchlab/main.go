package main

import (
	"os"

	"github.com/buckleypaul/benchlab/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
