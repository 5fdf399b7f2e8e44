package main

import (
	"os"

	"github.com/xuwkk/power-system-operation/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
