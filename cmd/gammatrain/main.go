// Command gammatrain learns feature strengths from recorded comparisons and
// serves them for scoring.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ramonehamilton/gammatrain/internal/version"
)

const usage = `gammatrain - feature strength learner

Usage:
  gammatrain <command> [flags]

Commands:
  import    Store decision records (JSON lines) in the database
  train     Train weights from stored or given records
  score     Score records with a trained weights file
  inspect   Show the registry, stored data, runs and weights
  serve     Serve a weights file over HTTP, reloading it on change
  version   Print the version

Run "gammatrain <command> -h" for command flags.
`

type command func(args []string) error

func main() {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	commands := map[string]command{
		"import":  runImport,
		"train":   runTrain,
		"score":   runScore,
		"inspect": runInspect,
		"serve":   runServe,
	}

	name := os.Args[1]
	switch name {
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	case "version", "-version", "--version":
		fmt.Println("gammatrain", version.String())
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	if err := cmd(os.Args[2:]); err != nil {
		log.Fatalf("%s failed: %v", name, err)
	}
}
