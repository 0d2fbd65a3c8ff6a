// Command sbomkit registers packages, scans them for licenses and produces
// SPDX documents from the results.
//
// Usage:
//
//	sbomkit dbinit
//	sbomkit scan ./widget-1.0.tar.gz -s nomos,trivy
//	sbomkit generate 1
//	sbomkit print 1 -F json -o widget.spdx.json
//	sbomkit oneshot ./widget -n widget -e 1.0
//	sbomkit annotate 1 SPDXRef-DOCUMENT "reviewed for release"
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
