// Package persistence reads and writes the portfolio JSON file.
// The layout is a JSON object mapping portfolio name to an array of
// position records; records missing optional fields load fine.
//
// A missing or corrupt file is never fatal - loading degrades through
// the backup file down to an empty store.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ashwinm/foliotrack/internal/domain"
)

// Store persists portfolios to a JSON file with a backup fallback.
type Store struct {
	mu         sync.Mutex
	path       string
	backupPath string
	log        zerolog.Logger
}

// NewStore creates a JSON portfolio store.
func NewStore(path, backupPath string, log zerolog.Logger) *Store {
	return &Store{
		path:       path,
		backupPath: backupPath,
		log:        log.With().Str("service", "persistence").Logger(),
	}
}

// Load reads portfolios from disk. Failures degrade: primary file,
// then backup, then an empty map. Never returns an error to the
// caller - the user must be able to start with a blank slate rather
// than be blocked by a bad file.
func (s *Store) Load() map[string][]domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadFile(s.path)
	if err == nil {
		return data
	}
	if !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", s.path).Msg("Failed to load portfolios, trying backup")
	}

	data, err = s.loadFile(s.backupPath)
	if err == nil {
		s.log.Info().Str("path", s.backupPath).Msg("Loaded portfolios from backup")
		return data
	}
	if !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", s.backupPath).Msg("Failed to load backup, starting empty")
	}

	return make(map[string][]domain.Position)
}

// loadFile reads and decodes one portfolio file.
func (s *Store) loadFile(path string) (map[string][]domain.Position, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var data map[string][]domain.Position
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if data == nil {
		data = make(map[string][]domain.Position)
	}
	return data, nil
}

// Save writes portfolios atomically: encode to a temp file in the same
// directory, then rename over the target.
func (s *Store) Save(data map[string][]domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, data)
}

// EmergencySave writes the backup file directly. Used on shutdown and
// interrupt paths where losing the write matters more than atomicity.
func (s *Store) EmergencySave(data map[string][]domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal emergency backup")
		return
	}
	if err := os.WriteFile(s.backupPath, raw, 0644); err != nil {
		s.log.Error().Err(err).Str("path", s.backupPath).Msg("Failed to write emergency backup")
		return
	}
	s.log.Info().Str("path", s.backupPath).Msg("Emergency backup saved")
}

// writeAtomic encodes data to a sibling temp file and renames it into
// place.
func writeAtomic(path string, data map[string][]domain.Position) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal portfolios: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".portfolios-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace portfolio file: %w", err)
	}
	return nil
}
