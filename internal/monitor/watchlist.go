package monitor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// WatchList selects the tag subset a monitor session subscribes to.
type WatchList struct {
	Name             string   `yaml:"name"`
	PollIntervalMs   int64    `yaml:"poll_interval_ms"`
	FailureThreshold int      `yaml:"failure_threshold"`
	Tags             []string `yaml:"tags"`
}

// ParseWatchList parses a YAML watch list file.
func ParseWatchList(filePath string) (*WatchList, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseWatchListFromReader(file)
}

// ParseWatchListFromReader parses a watch list from an io.Reader.
func ParseWatchListFromReader(r io.Reader) (*WatchList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var wl WatchList
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, err
	}
	if len(wl.Tags) == 0 {
		return nil, fmt.Errorf("watch list %q has no tags", wl.Name)
	}
	return &wl, nil
}

// ApplyConfig folds the watch list's overrides into a monitor config.
func (w *WatchList) ApplyConfig(cfg Config) Config {
	if w.PollIntervalMs > 0 {
		cfg.PollInterval = time.Duration(w.PollIntervalMs) * time.Millisecond
	}
	if w.FailureThreshold > 0 {
		cfg.FailureThreshold = w.FailureThreshold
	}
	return cfg
}

// Select resolves the watch list against a catalog, matching names
// case-insensitively the way the controller does. Unknown names fail
// with the offending tag named.
func (w *WatchList) Select(catalog []models.TagDescriptor) ([]models.TagDescriptor, error) {
	byLower := make(map[string]*models.TagDescriptor, len(catalog))
	for i := range catalog {
		byLower[strings.ToLower(catalog[i].Name)] = &catalog[i]
	}

	out := make([]models.TagDescriptor, 0, len(w.Tags))
	for _, name := range w.Tags {
		desc, ok := byLower[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("watch list %q: tag %q not in catalog", w.Name, name)
		}
		out = append(out, *desc)
	}
	return out, nil
}
