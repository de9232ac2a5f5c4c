package main

import (
	"os"

	"github.com/solatis/medaudit/cmd/medaudit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
