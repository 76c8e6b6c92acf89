// Command clubctl runs the club's admin tasks (migrations, locality seed, batch runs, reports) against
// the configured storage backend.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "clubctl:", err)
		os.Exit(1)
	}
}
