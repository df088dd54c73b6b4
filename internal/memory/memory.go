// Package memory persists the evolution history and the blacklist of
// parameter sets that lost money over their evaluation window. The
// Architect consults it before proposing and records every applied
// evolution through it.
package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// WindowDuration is how long an evolution is observed before its PnL
// verdict is final.
const WindowDuration = 2 * time.Hour

// Parameters describes one evolution attempt. Keys are free-form; the
// Architect uses reason, suggestion, and regime.
type Parameters map[string]any

// EvolutionRecord is one applied evolution and its performance window
type EvolutionRecord struct {
	Timestamp     time.Time  `json:"timestamp"`
	Parameters    Parameters `json:"parameters"`
	Reason        string     `json:"reason"`
	Suggestion    string     `json:"suggestion"`
	InitialEquity float64    `json:"initial_equity"`
	StartTime     time.Time  `json:"start_time"`

	// Window tracking, populated by UpdateWindow
	Evaluated     bool       `json:"evaluated,omitempty"`
	FinalPnL      *float64   `json:"final_pnl,omitempty"`
	FinalEquity   *float64   `json:"final_equity,omitempty"`
	CurrentEquity *float64   `json:"current_equity,omitempty"`
	CurrentPnL    *float64   `json:"current_pnl,omitempty"`
	LastUpdate    *time.Time `json:"last_update,omitempty"`
}

// BlacklistEntry records a parameter set that closed its window with
// negative PnL
type BlacklistEntry struct {
	Parameters     Parameters `json:"parameters"`
	PnL            float64    `json:"pnl"`
	Timestamp      time.Time  `json:"timestamp"`
	EvolutionIndex int        `json:"evolution_index"`
	Reason         string     `json:"reason"`
}

// Statistics summarizes the memory for status surfaces
type Statistics struct {
	TotalEvolutions       int     `json:"total_evolutions"`
	EvaluatedEvolutions   int     `json:"evaluated_evolutions"`
	BlacklistedParameters int     `json:"blacklisted_parameters"`
	SuccessRate           float64 `json:"success_rate"`
	PendingEvaluations    int     `json:"pending_evaluations"`
}

type model struct {
	Evolutions  []EvolutionRecord `json:"evolutions"`
	Blacklisted []BlacklistEntry  `json:"blacklisted_parameters"`
}

// EvolutionMemory is the single owner of the evolution history file.
// All mutations write through to disk with an atomic replace.
type EvolutionMemory struct {
	path string
	now  func() time.Time

	mu   sync.RWMutex
	data model
}

// NewEvolutionMemory loads the history at path. A missing file starts
// an empty history; an unreadable one is logged and replaced on the
// next write rather than aborting startup.
func NewEvolutionMemory(path string) *EvolutionMemory {
	m := &EvolutionMemory{path: path, now: time.Now}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("No evolution history found, starting fresh")
		return m
	}
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read evolution history, starting fresh")
		return m
	}

	if err := json.Unmarshal(raw, &m.data); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to parse evolution history, starting fresh")
		m.data = model{}
		return m
	}

	log.Info().
		Int("evolutions", len(m.data.Evolutions)).
		Int("blacklisted", len(m.data.Blacklisted)).
		Msg("Loaded evolution history")
	return m
}

// RecordEvolution appends a new evolution and returns its index
func (m *EvolutionMemory) RecordEvolution(parameters Parameters, reason, suggestion string, initialEquity float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.data.Evolutions = append(m.data.Evolutions, EvolutionRecord{
		Timestamp:     now,
		Parameters:    parameters,
		Reason:        reason,
		Suggestion:    suggestion,
		InitialEquity: initialEquity,
		StartTime:     now,
	})
	index := len(m.data.Evolutions) - 1

	if err := m.save(); err != nil {
		return index, err
	}
	log.Info().Int("index", index).Str("reason", reason).Msg("Recorded evolution")
	return index, nil
}

// UpdateWindow refreshes the performance of an evolution. Inside the
// window it just tracks current equity and PnL; once the window has
// elapsed it finalizes the record and blacklists the parameters when
// the PnL is negative.
func (m *EvolutionMemory) UpdateWindow(index int, currentEquity, pnl float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.data.Evolutions) {
		return fmt.Errorf("invalid evolution index: %d", index)
	}

	record := &m.data.Evolutions[index]
	if record.Evaluated {
		return nil
	}

	now := m.now()
	if now.Sub(record.StartTime) > WindowDuration {
		if pnl < 0 {
			m.blacklist(record.Parameters, pnl, index)
		}
		record.Evaluated = true
		record.FinalPnL = &pnl
		record.FinalEquity = &currentEquity

		log.Info().
			Int("index", index).
			Float64("pnl", pnl).
			Bool("blacklisted", pnl < 0).
			Msg("Evolution window closed")
	} else {
		record.CurrentEquity = &currentEquity
		record.CurrentPnL = &pnl
		record.LastUpdate = &now
	}

	return m.save()
}

// blacklist appends an entry. Caller holds m.mu.
func (m *EvolutionMemory) blacklist(parameters Parameters, pnl float64, index int) {
	m.data.Blacklisted = append(m.data.Blacklisted, BlacklistEntry{
		Parameters:     parameters,
		PnL:            pnl,
		Timestamp:      m.now(),
		EvolutionIndex: index,
		Reason:         fmt.Sprintf("Negative PnL (%.2f) over 2-hour window", pnl),
	})

	log.Warn().
		Float64("pnl", pnl).
		Interface("parameters", parameters).
		Msg("Parameters blacklisted due to negative PnL")
}

// IsBlacklisted reports whether a parameter set matches a blacklist
// entry, and the entry's reason when it does
func (m *EvolutionMemory) IsBlacklisted(parameters Parameters) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, entry := range m.data.Blacklisted {
		if parametersEqual(entry.Parameters, parameters) {
			return true, entry.Reason
		}
	}
	return false, ""
}

// Recent returns the last count evolutions, oldest first
func (m *EvolutionMemory) Recent(count int) []EvolutionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.data.Evolutions)
	if count > n {
		count = n
	}
	if count <= 0 {
		return nil
	}
	out := make([]EvolutionRecord, count)
	copy(out, m.data.Evolutions[n-count:])
	return out
}

// EvolutionCount returns the total number of recorded evolutions
func (m *EvolutionMemory) EvolutionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data.Evolutions)
}

// BlacklistCount returns the number of blacklisted parameter sets
func (m *EvolutionMemory) BlacklistCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data.Blacklisted)
}

// RecentBlacklisted returns the last count blacklist entries, most
// recent first
func (m *EvolutionMemory) RecentBlacklisted(count int) []BlacklistEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.data.Blacklisted)
	if count > n {
		count = n
	}
	if count <= 0 {
		return nil
	}
	out := make([]BlacklistEntry, 0, count)
	for i := n - 1; i >= n-count; i-- {
		out = append(out, m.data.Blacklisted[i])
	}
	return out
}

// Stats summarizes the history. Success rate is the share of evaluated
// evolutions that did not end up blacklisted.
func (m *EvolutionMemory) Stats() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	evaluated := 0
	for _, record := range m.data.Evolutions {
		if record.Evaluated {
			evaluated++
		}
	}

	failed := len(m.data.Blacklisted)
	successRate := 0.0
	if evaluated > 0 {
		successRate = float64(evaluated-failed) / float64(evaluated) * 100
	}

	return Statistics{
		TotalEvolutions:       len(m.data.Evolutions),
		EvaluatedEvolutions:   evaluated,
		BlacklistedParameters: failed,
		SuccessRate:           successRate,
		PendingEvaluations:    len(m.data.Evolutions) - evaluated,
	}
}

// PurgeBlacklistOlderThan drops blacklist entries older than the given
// number of days and returns how many were removed
func (m *EvolutionMemory) PurgeBlacklistOlderThan(days int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().AddDate(0, 0, -days)
	kept := m.data.Blacklisted[:0]
	for _, entry := range m.data.Blacklisted {
		if entry.Timestamp.After(cutoff) {
			kept = append(kept, entry)
		}
	}

	removed := len(m.data.Blacklisted) - len(kept)
	m.data.Blacklisted = kept
	if removed == 0 {
		return 0, nil
	}

	if err := m.save(); err != nil {
		return removed, err
	}
	log.Info().Int("removed", removed).Int("days", days).Msg("Purged old blacklist entries")
	return removed, nil
}

// save writes the model to disk with a temp-file rename so a crash
// mid-write never leaves a torn history. Caller holds m.mu.
func (m *EvolutionMemory) save() error {
	data, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode evolution history: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close history file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// parametersEqual compares two parameter sets structurally via their
// canonical JSON forms, so values that survive a disk round trip still
// match their in-process originals.
func parametersEqual(a, b Parameters) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
