package main

import (
	"os"

	"github.com/soundprediction/avert/cmd/avert"
)

func main() {
	if err := avert.Execute(); err != nil {
		os.Exit(1)
	}
}
