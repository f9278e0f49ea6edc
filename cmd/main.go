package main

import (
	"fmt"
	"os"

	"github.com/nzengi/zk-sac-engine/cmd/zksac/launcher"
)

func main() {
	if err := launcher.Launch(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
