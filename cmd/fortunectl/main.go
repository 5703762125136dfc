// Command fortunectl drives the reading pipeline and the quota ledger from a
// terminal, without the HTTP surface.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
