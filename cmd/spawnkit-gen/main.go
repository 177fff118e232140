// Command spawnkit-gen is the go:generate entry point for spawnkit's
// bridge emitter: it scans a package directory for spawnkit.Spawn call
// sites and writes the generated capture structs and entry functions
// internal/workerproc dispatches against.
//
//	//go:generate go run spawnkit/cmd/spawnkit-gen -pkg .
package main

import (
	"flag"
	"fmt"
	"os"

	"spawnkit/internal/codegen"
)

func main() {
	var pkgDir string
	flag.StringVar(&pkgDir, "pkg", ".", "package directory to scan for spawnkit.Spawn call sites")
	flag.Parse()

	written, err := codegen.Generate(pkgDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spawnkit-gen: %v\n", err)
		os.Exit(1)
	}

	if len(written) == 0 {
		fmt.Println("spawnkit-gen: no spawnkit.Spawn call sites found, nothing generated")
		return
	}
	for _, path := range written {
		fmt.Printf("spawnkit-gen: wrote %s\n", path)
	}
}
