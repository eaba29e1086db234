// astractl - command-line companion for the AstraGuard backend.
package main

import (
	"github.com/sr-857/astraguard-client/internal/cli"
)

func main() {
	cli.Execute()
}
