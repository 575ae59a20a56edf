package main

import (
	"os"

	"github.com/nazeru/quickshop-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
