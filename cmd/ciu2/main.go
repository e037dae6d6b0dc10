// ciu2 - collision induced unfolding fingerprint analysis
package main

import (
	"fmt"
	"os"

	"github.com/RuotoloLab/CIUSuite2/cmd/ciu2/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
