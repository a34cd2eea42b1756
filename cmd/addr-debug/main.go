package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	expand "github.com/openvenues/gopostal/expand"
	postal "github.com/openvenues/gopostal/parser"

	"github.com/permitlink/internal/normalize"
)

// addr-debug compares the pipeline's canonical form against libpostal's
// parse of the same address. Useful when a batch of permits refuses to
// link and the question is whether canonicalization mangled the street.

func main() {
	var (
		address = flag.String("address", "", "Single address to inspect")
		county  = flag.String("county", "Williamson", "County for fingerprint scoping")
		state   = flag.String("state", "TN", "State for fingerprint scoping")
	)
	flag.Parse()

	if *address != "" {
		inspect(*address, *county, *state)
		return
	}

	// No flag: read addresses from stdin, one per line.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		inspect(line, *county, *state)
		fmt.Println()
	}
}

func inspect(address, county, state string) {
	canonical := normalize.Canonicalize(address)
	fingerprint := normalize.Fingerprint(canonical, county, state)

	fmt.Printf("Raw:         %s\n", address)
	fmt.Printf("Canonical:   %s\n", canonical)
	if fingerprint != "" {
		fmt.Printf("Fingerprint: %s\n", fingerprint[:16])
	} else {
		fmt.Printf("Fingerprint: (none - address collapsed to empty)\n")
	}

	fmt.Println("libpostal components:")
	for _, c := range postal.ParseAddress(address) {
		fmt.Printf("  %-12s %s\n", c.Label+":", c.Value)
	}

	expansions := expand.ExpandAddress(address)
	if len(expansions) > 0 {
		fmt.Println("libpostal expansions:")
		for i, e := range expansions {
			if i >= 5 {
				fmt.Printf("  ... %d more\n", len(expansions)-i)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}
}
