package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"swarmsim.ai/internal/sim/world"
)

var ErrBadName = errors.New("scenario file name must be a plain file inside the library")

// Entry is one descriptor in a Library listing.
type Entry struct {
	File            string `json:"file"`
	GameID          string `json:"gameId"`
	GameDescription string `json:"gameDescription,omitempty"`
}

// Library is a directory of scenario descriptors addressed by file name.
type Library struct {
	dir string
	log *slog.Logger
}

func NewLibrary(dir string, log *slog.Logger) *Library {
	if log == nil {
		log = slog.Default()
	}
	return &Library{dir: dir, log: log}
}

func (l *Library) Dir() string { return l.dir }

// List returns every *.json descriptor sorted by file name. Unreadable files
// are skipped with a warning.
func (l *Library) List() ([]Entry, error) {
	ents, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id, desc, err := l.Header(e.Name())
		if err != nil {
			l.log.Warn("skip scenario", "file", e.Name(), "err", err)
			continue
		}
		out = append(out, Entry{File: e.Name(), GameID: id, GameDescription: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// Header reads only the identifying fields of a descriptor. Its signature
// matches world.PassthroughFunc.
func (l *Library) Header(file string) (gameID, description string, err error) {
	p, err := l.path(file)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", "", err
	}
	var h struct {
		GameID          string `json:"gameId"`
		GameDescription string `json:"gameDescription"`
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return "", "", fmt.Errorf("%s: %w: %v", file, ErrInvalid, err)
	}
	return h.GameID, h.GameDescription, nil
}

func (l *Library) Load(file string) (world.Scenario, error) {
	p, err := l.path(file)
	if err != nil {
		return world.Scenario{}, err
	}
	return LoadFile(p, l.log)
}

func (l *Library) path(file string) (string, error) {
	if file == "" || !filepath.IsLocal(file) || filepath.Base(file) != file {
		return "", fmt.Errorf("%q: %w", file, ErrBadName)
	}
	return filepath.Join(l.dir, file), nil
}
