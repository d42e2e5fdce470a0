package main

import (
	"fmt"
	"os"
)

const (
	appName = "gmatwiz"
	version = "v0.1.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
