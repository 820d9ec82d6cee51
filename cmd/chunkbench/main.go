// Command chunkbench benchmarks chunkcache against a configurable blob store.
package main

import (
	"log"
	"os"

	"github.com/maruel/subcommands"
)

var application = &subcommands.DefaultApplication{
	Name:  "chunkbench",
	Title: "Benchmark tool for the chunked encrypted cache.",
	// Keep in alphabetical order of their name.
	Commands: []*subcommands.Command{
		subcommands.CmdHelp,
		cmdRun,
		cmdSession,
		cmdShell,
	},
}

func main() {
	log.SetFlags(log.Lmicroseconds)
	os.Exit(subcommands.Run(application, nil))
}
