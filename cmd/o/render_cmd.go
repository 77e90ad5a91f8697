package main

import (
	"fmt"
	"os"

	"github.com/mutantcacti/o/internal/render"
)

// runRender reads a published markdown artifact from disk and prints
// its rendered HTML to stdout, for a human reviewing what an entity
// published. Read-only; does not bootstrap a runtime.
func runRender(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "o render: %v\n", err)
		os.Exit(1)
	}

	html, err := render.ToHTML(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "o render: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(html)
}
