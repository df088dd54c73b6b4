// Package tracelog persists reasoning traces as append-only
// newline-delimited JSON, with size-based rotation. Thought blocks
// emitted by reasoning models are extracted per entry so downstream
// analysis can inspect the chain of thought without reparsing.
package tracelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultMaxSizeMB = 100
	rotateStamp      = "20060102_150405"
)

var thoughtPattern = regexp.MustCompile(`(?s)<thought>(.*?)</thought>`)

// Entry is one logged reasoning trace
type Entry struct {
	Timestamp    time.Time              `json:"timestamp"`
	Source       string                 `json:"source"`
	Prompt       string                 `json:"prompt"`
	Response     string                 `json:"response"`
	Thoughts     []string               `json:"thoughts"`
	ThoughtCount int                    `json:"thought_count"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Statistics summarizes the current log file
type Statistics struct {
	TotalTraces int            `json:"total_traces"`
	FileSizeMB  float64        `json:"file_size_mb"`
	Sources     map[string]int `json:"sources"`
}

// Log is an append-only NDJSON trace log
type Log struct {
	path     string
	maxBytes int64

	mu  sync.Mutex
	now func() time.Time
}

// Open creates or reopens the trace log at path. Rotation triggers when
// the file exceeds maxSizeMB (default 100).
func Open(path string, maxSizeMB int) (*Log, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create trace log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace log: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to open trace log: %w", err)
	}

	log.Info().Str("path", path).Int("max_size_mb", maxSizeMB).Msg("Trace log opened")
	return &Log{path: path, maxBytes: int64(maxSizeMB) * 1024 * 1024, now: time.Now}, nil
}

// ExtractThoughts pulls the contents of every thought block in the
// text, trimmed. Blocks may span lines.
func ExtractThoughts(text string) []string {
	matches := thoughtPattern.FindAllStringSubmatch(text, -1)
	thoughts := make([]string, 0, len(matches))
	for _, m := range matches {
		thoughts = append(thoughts, strings.TrimSpace(m[1]))
	}
	return thoughts
}

// Record appends one trace entry. Oversized logs rotate first; the
// entry always lands in the fresh file.
func (l *Log) Record(source, prompt, response string, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	thoughts := ExtractThoughts(response)
	entry := Entry{
		Timestamp:    l.now().UTC(),
		Source:       source,
		Prompt:       prompt,
		Response:     response,
		Thoughts:     thoughts,
		ThoughtCount: len(thoughts),
		Metadata:     metadata,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode trace entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open trace log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append trace entry: %w", err)
	}

	log.Debug().
		Str("source", source).
		Int("thoughts", len(thoughts)).
		Int("response_chars", len(response)).
		Msg("Reasoning trace logged")
	return nil
}

// Recent returns the last count traces from the current file, oldest
// first. Unparseable lines are skipped.
func (l *Log) Recent(count int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read trace log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace log: %w", err)
	}

	if count > 0 && len(entries) > count {
		entries = entries[len(entries)-count:]
	}
	return entries, nil
}

// Statistics scans the current file for totals and a per-source count
func (l *Log) Statistics() (*Statistics, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := &Statistics{Sources: map[string]int{}}

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, fmt.Errorf("failed to stat trace log: %w", err)
	}
	stats.FileSizeMB = math.Round(float64(info.Size())/(1024*1024)*100) / 100

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry struct {
			Source string `json:"source"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		stats.TotalTraces++
		source := entry.Source
		if source == "" {
			source = "unknown"
		}
		stats.Sources[source]++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace log: %w", err)
	}
	return stats, nil
}

// rotateIfNeeded renames an oversized log with a timestamp suffix and
// recreates it empty. Caller holds the mutex.
func (l *Log) rotateIfNeeded() error {
	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat trace log: %w", err)
	}
	if info.Size() <= l.maxBytes {
		return nil
	}

	ext := filepath.Ext(l.path)
	stem := strings.TrimSuffix(filepath.Base(l.path), ext)
	rotated := filepath.Join(filepath.Dir(l.path),
		fmt.Sprintf("%s_%s%s", stem, l.now().Format(rotateStamp), ext))
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("failed to rotate trace log: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to recreate trace log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to recreate trace log: %w", err)
	}

	log.Info().Str("rotated", rotated).Msg("Trace log rotated")
	return nil
}
