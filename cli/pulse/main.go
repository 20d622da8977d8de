package main

import (
	"os"

	pulsecmder "github.com/papercomputeco/pulse/cmd/pulse"
)

func main() {
	cmd := pulsecmder.NewPulseCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
