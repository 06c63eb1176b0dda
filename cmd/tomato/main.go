// Package main is the entry point for the tomato CLI: the pomodoro daemon and
// its socket clients.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tomato: %v\n", err)
		os.Exit(1)
	}
}
