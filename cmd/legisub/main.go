// Package main is the entry point for the legisub live-captioning engine.
package main

import (
	"os"

	"github.com/jihoonkim/legisub/cmd/legisub/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
