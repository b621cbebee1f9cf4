package main

import (
	"fmt"
	"os"

	"github.com/nhle/studiosync/cmd/studiosync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
