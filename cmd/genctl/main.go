package main

import (
	"os"

	"genbridge/internal/genctl"
)

func main() {
	if err := genctl.Execute(); err != nil {
		os.Exit(1)
	}
}
