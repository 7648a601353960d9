package main

import (
	"fmt"
	"os"

	"github.com/danmuck/typechan/internal/logging"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "typechanctl: %v\n", err)
		os.Exit(1)
	}
}
