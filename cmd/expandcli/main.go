// Command expandcli expands queries from the command line using the same
// configuration and modules as the expansion service.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/cmd/expandcli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
