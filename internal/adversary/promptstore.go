package adversary

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	promptPrefix     = "adversary_v"
	promptExt        = ".txt"
	promptArchiveDir = "archive"
)

// baseSystemPrompt seeds version 0 and serves as the fallback when the
// active version cannot be read
const baseSystemPrompt = `You are a behavioral psychologist analyzing trader psychology.

Your mission is to identify human psychological vulnerabilities:
1. FOMO Chasers - buying extensions after vertical moves
2. Panic Sellers - capitulating at support levels
3. Revenge Traders - emotional overtrading after losses

CRITICAL RULES:
- Always explain your reasoning step-by-step (Chain-of-Thought)
- Never recommend trading without stop-losses
- Consider both technical indicators AND narrative sentiment
- Identify if moves are "Rational" or "Emotional"
- Predict whale liquidity hunt zones

Thresholds:
- FOMO: RSI > 70 + Price extension > 3%
- Panic: RSI < 30 + Fear sentiment
- Liquidity Hunt: 0.5% below swing lows`

// PromptVersion describes one stored prompt file
type PromptVersion struct {
	Version  int       `json:"version"`
	Filename string    `json:"filename"`
	Created  time.Time `json:"created"`
}

// PromptStore version-controls the analyst's system prompt on disk.
// Prompts live as adversary_v{N}.txt files; superseded versions are
// copied into an archive subdirectory before a new one is installed.
type PromptStore struct {
	dir string

	mu      sync.Mutex
	version int

	now func() time.Time
}

// NewPromptStore opens the store at dir, seeding version 0 with the
// base prompt when no versions exist yet
func NewPromptStore(dir string) (*PromptStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, promptArchiveDir), 0750); err != nil {
		return nil, fmt.Errorf("failed to create prompts directory: %w", err)
	}

	s := &PromptStore{dir: dir, now: time.Now}
	version, err := s.scanVersion()
	if err != nil {
		return nil, err
	}
	if version < 0 {
		if err := s.write(baseSystemPrompt, 0); err != nil {
			return nil, err
		}
		version = 0
	}
	s.version = version

	log.Info().Str("dir", dir).Int("version", version).Msg("Prompt store opened")
	return s, nil
}

// Version returns the active prompt version number
func (s *PromptStore) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Current returns the active prompt with header comment lines stripped.
// A missing file falls back to the base prompt.
func (s *PromptStore) Current() (string, error) {
	s.mu.Lock()
	version := s.version
	s.mu.Unlock()

	raw, err := os.ReadFile(s.path(version))
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Int("version", version).Msg("Prompt version missing, using base prompt")
			return baseSystemPrompt, nil
		}
		return "", fmt.Errorf("failed to read prompt version %d: %w", version, err)
	}

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// Install archives the active version and writes prompt as the next
// one, returning the new version number
func (s *PromptStore) Install(prompt string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.archive(s.version); err != nil {
		return 0, err
	}

	next := s.version + 1
	if err := s.write(prompt, next); err != nil {
		return 0, err
	}
	s.version = next

	log.Info().Int("version", next).Msg("Installed evolved prompt")
	return next, nil
}

// History lists stored prompt versions in ascending order
func (s *PromptStore) History() ([]PromptVersion, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt versions: %w", err)
	}

	var history []PromptVersion
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, ok := parseVersion(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		history = append(history, PromptVersion{
			Version:  version,
			Filename: entry.Name(),
			Created:  info.ModTime(),
		})
	}

	sort.Slice(history, func(i, j int) bool { return history[i].Version < history[j].Version })
	return history, nil
}

func (s *PromptStore) scanVersion() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan prompts directory: %w", err)
	}

	version := -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if v, ok := parseVersion(entry.Name()); ok && v > version {
			version = v
		}
	}
	return version, nil
}

func (s *PromptStore) write(prompt string, version int) error {
	header := fmt.Sprintf("# Adversary System Prompt v%d\n# Generated: %s\n\n",
		version, s.now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(s.path(version), []byte(header+prompt), 0600); err != nil {
		return fmt.Errorf("failed to write prompt version %d: %w", version, err)
	}
	return nil
}

// archive copies the version into the archive subdirectory with a
// timestamp suffix. The original stays in place.
func (s *PromptStore) archive(version int) error {
	raw, err := os.ReadFile(s.path(version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read prompt for archive: %w", err)
	}

	name := fmt.Sprintf("%s%d_%s%s", promptPrefix, version, s.now().Format("20060102_150405"), promptExt)
	dst := filepath.Join(s.dir, promptArchiveDir, name)
	if err := os.WriteFile(dst, raw, 0600); err != nil {
		return fmt.Errorf("failed to archive prompt version %d: %w", version, err)
	}

	log.Info().Int("version", version).Str("archive", dst).Msg("Archived prompt version")
	return nil
}

func (s *PromptStore) path(version int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d%s", promptPrefix, version, promptExt))
}

func parseVersion(filename string) (int, bool) {
	if !strings.HasPrefix(filename, promptPrefix) || !strings.HasSuffix(filename, promptExt) {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(filename, promptPrefix), promptExt))
	if err != nil {
		return 0, false
	}
	return v, true
}
