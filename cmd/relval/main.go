// relval manages release validation documents from the command line.
package main

import "github.com/jacentio/relval/internal/cli"

// version is set via ldflags at build time.
var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
