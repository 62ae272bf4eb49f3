// Package main provides the a64dbt command line: decode, translate and run
// ARM64 guest code.
package main

import (
	"os"
)

func main() {
	gs := newGlobalState(os.Stdout, os.Stderr, os.LookupEnv)
	os.Exit(execute(gs, os.Args[1:]))
}
