// Package snapshot archives simulation snapshots as zstd files: one JSON
// header line followed by the JSON-encoded state. Archives are write-only from
// the simulator's point of view; nothing is restored from them.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"swarmsim.ai/internal/sim/world"
)

const Version = 1

type Header struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id,omitempty"`
	GameID    string    `json:"game_id"`
	SimTime   float64   `json:"sim_time"`
	Reason    string    `json:"reason"`
	WrittenAt time.Time `json:"written_at"`
}

type Archive struct {
	Header Header         `json:"header"`
	State  world.Snapshot `json:"state"`
}

func WriteSnapshot(path string, a Archive) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, a); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, a Archive) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(a.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&a); err != nil {
		_ = enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (Archive, error) {
	var a Archive
	f, err := os.Open(path)
	if err != nil {
		return a, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return a, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return a, fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&a); err != nil {
		return a, fmt.Errorf("json decode: %w", err)
	}
	return a, nil
}

// ReadHeader decodes only the first line of an archive.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Archiver names and writes archives under a directory.
type Archiver struct {
	dir string
	now func() time.Time
}

func NewArchiver(dir string) *Archiver {
	return &Archiver{dir: dir, now: time.Now}
}

func (a *Archiver) Dir() string { return a.dir }

// Save writes snap and returns the archive path.
func (a *Archiver) Save(reason, runID string, snap world.Snapshot) (string, error) {
	now := a.now().UTC()
	game := strings.Trim(unsafeName.ReplaceAllString(snap.GameID, "_"), "_")
	if game == "" {
		game = "game"
	}
	name := fmt.Sprintf("%s-%s-%s.snap.zst", now.Format("20060102T150405.000Z"), game, unsafeName.ReplaceAllString(reason, "_"))
	path := filepath.Join(a.dir, name)
	err := WriteSnapshot(path, Archive{
		Header: Header{
			Version:   Version,
			RunID:     runID,
			GameID:    snap.GameID,
			SimTime:   snap.Time,
			Reason:    reason,
			WrittenAt: now,
		},
		State: snap,
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// List returns archive paths, oldest first.
func (a *Archiver) List() ([]string, error) {
	ents, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			out = append(out, filepath.Join(a.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
