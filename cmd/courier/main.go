package main

import (
	"os"

	"github.com/wesleyorama2/courier/internal/cli"
)

// Main is the entry point for the application. It returns the process exit
// code: 1 when the run failed or a threshold did not pass.
func Main() int {
	if err := cli.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(Main())
}
