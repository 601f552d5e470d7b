package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"genbridge/pkg/types"
)

// styleFile is the on-disk shape of one style definition.
type styleFile struct {
	Name           string   `json:"name"`
	Architecture   string   `json:"architecture"`
	Sampler        string   `json:"sampler"`
	CFGScale       float64  `json:"cfg_scale"`
	Steps          int      `json:"steps"`
	StylePrompt    string   `json:"style_prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	Checkpoints    []string `json:"checkpoints"`
}

// StyleStore serves the style definitions found in one directory. Styles are
// plain JSON files; the id is "built-in/<filename>" so clients can tell
// shipped styles from user ones later.
type StyleStore struct {
	dir string
	log zerolog.Logger

	mu     sync.Mutex
	styles []types.StyleSummary
}

// NewStyleStore loads every *.json style under dir. A missing directory is
// not an error; the store is just empty. Unreadable files are logged and
// skipped so one bad style cannot hide the rest.
func NewStyleStore(dir string, log zerolog.Logger) (*StyleStore, error) {
	s := &StyleStore{dir: dir, log: log}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the style directory.
func (s *StyleStore) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.styles = nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read styles dir %s: %w", s.dir, err)
	}

	var styles []types.StyleSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn().Str("file", path).Err(err).Msg("skipping unreadable style")
			continue
		}
		var sf styleFile
		if err := json.Unmarshal(data, &sf); err != nil {
			s.log.Warn().Str("file", path).Err(err).Msg("skipping invalid style")
			continue
		}
		name := sf.Name
		if name == "" {
			name = strings.TrimSuffix(e.Name(), ".json")
		}
		styles = append(styles, types.StyleSummary{
			ID:             "built-in/" + e.Name(),
			Name:           name,
			Architecture:   sf.Architecture,
			Sampler:        sf.Sampler,
			CFGScale:       sf.CFGScale,
			Steps:          sf.Steps,
			StylePrompt:    sf.StylePrompt,
			NegativePrompt: sf.NegativePrompt,
			Checkpoints:    sf.Checkpoints,
		})
	}
	sort.Slice(styles, func(i, j int) bool { return styles[i].ID < styles[j].ID })

	s.mu.Lock()
	s.styles = styles
	s.mu.Unlock()
	s.log.Info().Int("count", len(styles)).Str("dir", s.dir).Msg("styles loaded")
	return nil
}

// List returns the loaded styles in id order.
func (s *StyleStore) List() []types.StyleSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.StyleSummary, len(s.styles))
	copy(out, s.styles)
	return out
}
