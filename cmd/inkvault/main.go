package main

import (
	"fmt"
	"os"

	"github.com/inkvault/inkvault/cmd/inkvault/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
