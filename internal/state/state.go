// Package state persists the last applied record of every function.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/picklr-io/lambdasync/internal/ir"
)

// DefaultPath is the local state file relative to the project directory.
const DefaultPath = ".lambdasync/state.json"

// Manager handles reading and writing of local state.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the state from the configured path.
// If the state file is encrypted, it is transparently decrypted before loading.
func (m *Manager) Read(_ context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return ir.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	state, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load state from %s: %w", m.path, err)
	}
	return state, nil
}

// Write saves the state to the configured path.
// If LAMBDASYNC_STATE_ENCRYPTION_KEY is set, the file is transparently encrypted.
func (m *Manager) Write(_ context.Context, state *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := Encode(state)
	if err != nil {
		return err
	}

	// Write through a temp file so a crash never leaves a torn document.
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.path, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.path, err)
	}
	return nil
}

// Encode serializes the state for storage. It bumps the serial, assigns a
// lineage on first write and encrypts when a key is configured.
func Encode(state *ir.State) ([]byte, error) {
	state.Serial++
	if state.Lineage == "" {
		state.Lineage = uuid.NewString()
	}
	if state.Version == 0 {
		state.Version = 1
	}

	content, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	content = append(content, '\n')

	encrypted, err := EncryptState(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt state: %w", err)
	}
	return encrypted, nil
}

// Decode parses stored state, decrypting it first if needed.
func Decode(raw []byte) (*ir.State, error) {
	content, err := DecryptState(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	state := ir.NewState()
	if err := json.Unmarshal(content, state); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	if state.Instances == nil {
		state.Instances = make(map[string]*ir.PriorInstance)
	}
	return state, nil
}
