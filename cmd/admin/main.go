// Command admin inspects local run data and drives the server's loopback
// admin endpoints.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"swarmsim.ai/internal/persistence/snapshot"
)

const usage = `usage: admin <command> [flags]

local:
  snapshots [-data ./data]            list archived snapshots
  db [-data ./data] runs|events|snapshots

server (loopback only):
  state | scenarios | runs | events
  load -file <scenario.json> | reset | sandbox | snapshot`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "snapshots":
		snapshotsCmd(args)
	case "db":
		dbCmd(args)
	case "state", "scenarios", "runs", "events":
		getCmd(cmd, args)
	case "load":
		loadCmd(args)
	case "reset", "sandbox", "snapshot":
		postCmd(cmd, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	paths, err := snapshot.NewArchiver(filepath.Join(*dataDir, "snapshots")).List()
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(p), err)
			continue
		}
		printJSON(struct {
			Path string `json:"path"`
			snapshot.Header
		}{p, h})
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
