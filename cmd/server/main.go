package main

import (
	"fmt"
	"mpc_match/cmd/server/commands"
	"os"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
