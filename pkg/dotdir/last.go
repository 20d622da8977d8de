package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const lastGenerationFile = "last_generation.json"

// LastGeneration is the persisted outcome of the most recent successful
// `pulse generate`.
type LastGeneration struct {
	Prompt      string          `json:"prompt"`
	Text        string          `json:"text"`
	Result      json.RawMessage `json:"result,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// LoadLastGeneration returns the saved generation, or nil, nil when none has
// been saved.
func (m *Manager) LoadLastGeneration(overrideDir string) (*LastGeneration, error) {
	path, err := m.File(overrideDir, lastGenerationFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading last generation: %w", err)
	}

	last := &LastGeneration{}
	if err := json.Unmarshal(data, last); err != nil {
		return nil, fmt.Errorf("parsing last generation: %w", err)
	}
	return last, nil
}

// SaveLastGeneration overwrites the saved generation.
func (m *Manager) SaveLastGeneration(last *LastGeneration, overrideDir string) error {
	if last == nil {
		return errors.New("cannot save nil generation")
	}

	path, err := m.File(overrideDir, lastGenerationFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(last, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling last generation: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing last generation: %w", err)
	}
	return nil
}

// ClearLastGeneration removes the saved generation. Missing files are fine.
func (m *Manager) ClearLastGeneration(overrideDir string) error {
	path, err := m.File(overrideDir, lastGenerationFile)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing last generation: %w", err)
	}
	return nil
}
