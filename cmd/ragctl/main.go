// Command ragctl is the operator CLI for the ragcore hybrid retrieval
// core: index, search, stats, feedback, and cache inspection, wired to
// a built-in hash-based embedder so the library can be exercised without
// a separate embedding service.
package main

import (
	"fmt"
	"os"

	"github.com/aman-cerp/ragcore/cmd/ragctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ragctl:", err)
		os.Exit(1)
	}
}
