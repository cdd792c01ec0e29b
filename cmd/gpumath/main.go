// Command gpumath evaluates a random population against a goal vector on
// the GPU and on the host, and reports the best candidate.
package main

import (
	"os"

	"github.com/gogpu/gpumath/cmd/gpumath/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
