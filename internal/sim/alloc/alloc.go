// Package alloc computes agent to task assignments. Functions here are pure:
// callers pass in the idle agents and the open task slots they want solved.
package alloc

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"swarmsim.ai/internal/sim/geo"
)

type Method string

const (
	MethodRandom Method = "random"
	MethodMaxSum Method = "maxsum"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodRandom, MethodMaxSum:
		return m, nil
	default:
		return MethodMaxSum, fmt.Errorf("unknown allocation method %q", s)
	}
}

type Agent struct {
	ID         string
	Coordinate geo.Coordinate
}

type Task struct {
	ID         string
	Coordinate geo.Coordinate
	// Slots is how many more agents the task accepts.
	Slots int
}

// Assignment maps agent id -> task id.
type Assignment map[string]string

type Options struct {
	Method Method
	Rand   *rand.Rand
	// IgnoredTaskProb is the chance the random method skips a candidate task.
	IgnoredTaskProb float64
}

func Solve(agents []Agent, tasks []Task, opts Options) Assignment {
	if opts.Method == MethodRandom {
		return Random(agents, tasks, opts.Rand, opts.IgnoredTaskProb)
	}
	return MaxSum(agents, tasks)
}

// Utility is the proximity score of sending an agent to a task.
func Utility(a Agent, t Task) float64 {
	return 1 / (1 + a.Coordinate.Distance(t.Coordinate))
}

func sortedAgents(in []Agent) []Agent {
	out := append([]Agent(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func slotsByTask(tasks []Task) ([]Task, map[string]int) {
	out := make([]Task, 0, len(tasks))
	slots := make(map[string]int, len(tasks))
	for _, t := range tasks {
		if t.Slots <= 0 {
			continue
		}
		if _, dup := slots[t.ID]; dup {
			slots[t.ID] += t.Slots
			continue
		}
		slots[t.ID] = t.Slots
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, slots
}

// Random gives each agent, in id order, a uniformly chosen task with a free slot.
func Random(agents []Agent, tasks []Task, rng *rand.Rand, ignoredProb float64) Assignment {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	open, slots := slotsByTask(tasks)
	out := Assignment{}
	for _, a := range sortedAgents(agents) {
		var cands []Task
		for _, t := range open {
			if slots[t.ID] > 0 {
				cands = append(cands, t)
			}
		}
		rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
		for _, t := range cands {
			if ignoredProb > 0 && rng.Float64() < ignoredProb {
				continue
			}
			out[a.ID] = t.ID
			slots[t.ID]--
			break
		}
	}
	return out
}

type pair struct {
	agent, task int
	u           float64
}

// MaxSum approximates the max-utility matching: a greedy pass over all pairs
// by descending utility, then pairwise swaps until no swap improves the sum.
// Ties break on agent id then task id, so equal inputs give equal output.
func MaxSum(agents []Agent, tasks []Task) Assignment {
	as := sortedAgents(agents)
	ts, slots := slotsByTask(tasks)
	if len(as) == 0 || len(ts) == 0 {
		return Assignment{}
	}

	pairs := make([]pair, 0, len(as)*len(ts))
	for i, a := range as {
		for j, t := range ts {
			pairs = append(pairs, pair{agent: i, task: j, u: Utility(a, t)})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].u != pairs[j].u {
			return pairs[i].u > pairs[j].u
		}
		if pairs[i].agent != pairs[j].agent {
			return pairs[i].agent < pairs[j].agent
		}
		return pairs[i].task < pairs[j].task
	})

	choice := make([]int, len(as))
	for i := range choice {
		choice[i] = -1
	}
	for _, p := range pairs {
		if choice[p.agent] >= 0 || slots[ts[p.task].ID] == 0 {
			continue
		}
		choice[p.agent] = p.task
		slots[ts[p.task].ID]--
	}

	const eps = 1e-12
	for round := 0; round < len(as)*len(as)+1; round++ {
		improved := false
		for i := range as {
			for k := i + 1; k < len(as); k++ {
				ti, tk := choice[i], choice[k]
				if ti < 0 || tk < 0 || ti == tk {
					continue
				}
				cur := Utility(as[i], ts[ti]) + Utility(as[k], ts[tk])
				alt := Utility(as[i], ts[tk]) + Utility(as[k], ts[ti])
				if alt > cur+eps {
					choice[i], choice[k] = tk, ti
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}

	out := make(Assignment, len(as))
	for i, j := range choice {
		if j >= 0 {
			out[as[i].ID] = ts[j].ID
		}
	}
	return out
}

// Counts returns how many agents each task holds in a.
func (a Assignment) Counts() map[string]int {
	out := map[string]int{}
	for _, t := range a {
		out[t]++
	}
	return out
}

func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
