// Command neuron runs an agent on a prompt against a configured model
// backend, with filesystem and shell tools rooted at a working directory.
//
//	neuron run "fix the failing test" --cwd ./repo --max-turns 30
//	neuron run --stream --journal runs.db --run-id fix-1 < task.txt
//	neuron tools
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
