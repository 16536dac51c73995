// Command ecs-snapshot exercises and manages ECS world snapshots.
//
// The stress command runs a simulation that periodically snapshots the world
// into a store and restores from it. The remaining commands inspect and
// manage the stored snapshots.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
