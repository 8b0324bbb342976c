// Command circulation runs the library book circulation service.
//
//	circulation serve    start the HTTP API
//	circulation migrate  create the tables of the configured SQL store
//	circulation seed     add books from a CSV file with isbn,title,author rows
//
// Settings come from CIRCULATION_* environment variables; flags override them.
package main

import (
	"fmt"
	"os"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
