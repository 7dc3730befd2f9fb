// Package sales implements the rolling-window Sale store (spec.md §4.10):
// load the previous run's Sales, prune entries outside the window, merge in
// newly collected Sales deduped by their composite key, and persist. The
// load/prune/save-JSON cycle is grounded on the teacher's
// internal/webcache/webcache.go.
package sales

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/guarzo/pkmcatalog/internal/model"
)

// Document is the on-disk shape of sales_30d.json (§6).
type Document struct {
	Sales []model.Sale `json:"sales"`
}

// Store manages the rolling window of retained Sales for one data directory.
type Store struct {
	path   string
	window time.Duration
}

// New builds a Store rooted at dataDir/sales_30d.json, retaining entries
// within window of "now" at Prune time.
func New(dataDir string, window time.Duration) *Store {
	return &Store{path: filepath.Join(dataDir, "sales_30d.json"), window: window}
}

// Load reads the previous run's Sales. A missing file is not an error: it
// simply yields an empty window (first run).
func (s *Store) Load() ([]model.Sale, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sales: read %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("sales: unmarshal %s: %w", s.path, err)
	}
	return doc.Sales, nil
}

// Prune drops entries with collectedAt older than now-window.
func (s *Store) Prune(sales []model.Sale, now time.Time) []model.Sale {
	cutoff := now.Add(-s.window)
	kept := make([]model.Sale, 0, len(sales))
	for _, sale := range sales {
		if !sale.CollectedAt.Before(cutoff) {
			kept = append(kept, sale)
		}
	}
	return kept
}

// Merge appends newSales to retained, deduping on model.Sale.DedupKey; the
// first-seen copy of a duplicate key wins.
func Merge(retained, newSales []model.Sale) []model.Sale {
	seen := make(map[string]bool, len(retained)+len(newSales))
	merged := make([]model.Sale, 0, len(retained)+len(newSales))
	for _, sale := range retained {
		key := sale.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, sale)
	}
	for _, sale := range newSales {
		key := sale.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, sale)
	}
	return merged
}

// Save writes the surviving Sale list back to disk atomically enough for a
// single-writer batch job: write to a temp file, then rename over the
// target.
func (s *Store) Save(sales []model.Sale) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("sales: create data dir: %w", err)
	}
	data, err := json.MarshalIndent(Document{Sales: sales}, "", "  ")
	if err != nil {
		return fmt.Errorf("sales: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sales: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("sales: rename into place: %w", err)
	}
	return nil
}
