// The main package for the starchive executable.
package main

import (
	"github.com/galaxia-dev/starchive/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
