// The main package for the amzwatch executable.
package main

import (
	"github.com/daniel7634/amzwatch/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
