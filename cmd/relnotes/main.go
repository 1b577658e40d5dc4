// Command relnotes indexes release notes and serves answers about them.
//
// Usage:
//
//	relnotes index   fetch all release notes and replace the collection
//	relnotes serve   serve POST /rag/invoke and POST /answer
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
