package main

import (
	"os"

	"github.com/PranayPant/speech-to-text/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
