package main

import (
	"os"

	"github.com/soundprediction/go-servicegraph/cmd/servicegraph"
)

func main() {
	if err := servicegraph.Execute(); err != nil {
		os.Exit(1)
	}
}
