// autodiff evaluates formulas and computes their Jacobians from the command
// line.
package main

import (
	"os"

	"github.com/njchilds90/autodiff/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
