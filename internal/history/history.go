// Package history keeps the local, user-browsable log of finished jobs.
// The recorder is append-only; applied/discarded flags are edited by the UI
// layer on its own copy and saved back wholesale.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Image is one generated result inside a group.
type Image struct {
	Index   int    `json:"index"`
	Image   string `json:"image"`
	Applied bool   `json:"applied"`
	Seed    int64  `json:"seed"`
}

// Group is the result of one finished job.
type Group struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	Strength       int       `json:"strength"`
	StyleID        string    `json:"style_id,omitempty"`
	Images         []Image   `json:"images"`
}

// Recorder appends groups to a JSONL file, one group per line.
type Recorder struct {
	path string
	log  zerolog.Logger

	mu sync.Mutex
}

// NewRecorder creates a recorder writing to path. The file is created on
// first record.
func NewRecorder(path string, log zerolog.Logger) *Recorder {
	return &Recorder{path: path, log: log}
}

// Record appends one group. Every finished job that produced images yields
// exactly one group; there is no merging or dedup.
func (r *Recorder) Record(g *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode history group: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history group: %w", err)
	}
	r.log.Debug().Str("id", g.ID).Int("images", len(g.Images)).Msg("recorded history group")
	return nil
}

// List loads all recorded groups in append order. A missing file is an
// empty history, not an error. Corrupt lines are skipped with a warning so
// one bad write never hides the rest of the log.
func (r *Recorder) List() ([]Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	var groups []Group
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for sc.Scan() {
		var g Group
		if err := json.Unmarshal(sc.Bytes(), &g); err != nil {
			r.log.Warn().Err(err).Msg("skipping corrupt history line")
			continue
		}
		groups = append(groups, g)
	}
	if err := sc.Err(); err != nil {
		return groups, fmt.Errorf("read history log: %w", err)
	}
	return groups, nil
}
