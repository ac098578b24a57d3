package main

import (
	"os"

	"github.com/templui/accounts/cmd/do/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
