// l2node is a Bitcoin L2 settlement node.
package main

import (
	"os"

	"github.com/btcl2/l2node/cmd"
	"github.com/btcl2/l2node/node"
)

var (
	version string
	commit  string
	branch  string
)

func main() { // run the app
	cmd.Version = version
	cmd.Commit = commit
	cmd.Branch = branch
	if err := node.GetCommand().Execute(); err != nil {
		// Do not print error as cmd.SilenceErrors is false
		// and the error was already printed
		os.Exit(1)
	}
}
