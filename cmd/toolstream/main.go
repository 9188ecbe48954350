package main

import (
	"os"

	"github.com/petal-labs/toolstream/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	err := cli.NewRootCmd(version).Execute()
	os.Exit(cli.ExitCode(err))
}
