// Command evmkit compiles, deploys and calls contracts and signs
// authorizations from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
