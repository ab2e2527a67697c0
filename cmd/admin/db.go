package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"swarmsim.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run_id filter (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "swarmsim.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path, 1)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	var rows []any
	switch q {
	case "runs":
		rs, err := idx.Runs(ctx)
		exitOn(err)
		for _, r := range rs {
			rows = append(rows, r)
		}
	case "events":
		es, err := idx.RecentEvents(ctx, *runID, *limit)
		exitOn(err)
		for _, e := range es {
			rows = append(rows, e)
		}
	case "snapshots":
		ss, err := idx.Snapshots(ctx, *limit)
		exitOn(err)
		for _, s := range ss {
			rows = append(rows, s)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-run RUN] [-limit N] runs|events|snapshots")
		os.Exit(2)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}
