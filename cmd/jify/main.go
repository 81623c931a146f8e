// Command jify is the CLI front-end over the jify package: build or
// refresh field indexes on a data file, and query them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jify:", err)
		os.Exit(1)
	}
}
