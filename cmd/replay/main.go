package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	persistlog "swarmsim.ai/internal/persistence/log"
	"swarmsim.ai/internal/persistence/snapshot"
	"swarmsim.ai/internal/sim/world"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst (optional)")
		dataDir  = flag.String("data", "", "data dir containing events/events-*.jsonl.zst (optional)")
		runID    = flag.String("run", "", "only replay events of this run id")
		verbose  = flag.Bool("v", false, "print every event")
	)
	flag.Parse()

	if *snapPath == "" && *dataDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -data")
		os.Exit(2)
	}

	if *snapPath != "" {
		a, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		printSnapshot(os.Stdout, a)
	}

	if *dataDir == "" {
		return
	}
	sum := newSummary()
	err := persistlog.ReadEvents(*dataDir, func(ev world.Event) error {
		if *runID != "" && ev.RunID != *runID {
			return nil
		}
		if *verbose {
			fmt.Printf("%9.1f %-6s run=%s agent=%s task=%s %v\n", ev.SimTime, ev.Code, ev.RunID, ev.AgentID, ev.TaskID, ev.Data)
		}
		sum.add(ev)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	sum.print(os.Stdout)
}

func printSnapshot(w io.Writer, a snapshot.Archive) {
	s := a.State
	fmt.Fprintf(w, "snapshot v%d game=%q run=%s reason=%s sim_time=%.1f agents=%d tasks=%d completed=%d hazards=%d targets=%d\n",
		a.Header.Version, a.Header.GameID, a.Header.RunID, a.Header.Reason, a.Header.SimTime,
		len(s.Agents), len(s.Tasks), len(s.CompletedTasks), len(s.Hazards), len(s.Targets))
	for _, ag := range s.Agents {
		task := s.Allocation[ag.ID]
		if task == "" {
			task = "-"
		}
		fmt.Fprintf(w, "  %-8s task=%-8s battery=%.2f timed_out=%t\n", ag.ID, task, ag.Battery, ag.TimedOut)
	}
}

type runSummary struct {
	gameID     string
	first      float64
	last       float64
	codes      map[string]int
	completion []float64
}

type summary struct {
	order []string
	runs  map[string]*runSummary
}

func newSummary() *summary { return &summary{runs: map[string]*runSummary{}} }

func (s *summary) add(ev world.Event) {
	id := ev.RunID
	if id == "" {
		id = "(none)"
	}
	r := s.runs[id]
	if r == nil {
		r = &runSummary{gameID: ev.GameID, first: ev.SimTime, codes: map[string]int{}}
		s.runs[id] = r
		s.order = append(s.order, id)
	}
	if r.gameID == "" {
		r.gameID = ev.GameID
	}
	r.last = ev.SimTime
	r.codes[ev.Code]++
	if ev.Code == world.EventTaskComplete {
		r.completion = append(r.completion, ev.SimTime)
	}
}

func (s *summary) print(w io.Writer) {
	for _, id := range s.order {
		r := s.runs[id]
		codes := make([]string, 0, len(r.codes))
		for c, n := range r.codes {
			codes = append(codes, fmt.Sprintf("%s=%d", c, n))
		}
		sort.Strings(codes)
		fmt.Fprintf(w, "run=%s game=%q sim_time=%.1f..%.1f %s\n", id, r.gameID, r.first, r.last, strings.Join(codes, " "))
		if len(r.completion) > 0 {
			fmt.Fprintf(w, "  tasks completed=%d first=%.1f last=%.1f\n", len(r.completion), r.completion[0], r.completion[len(r.completion)-1])
		}
	}
}
