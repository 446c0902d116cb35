// Package localstore keeps a tiny on-device JSON file with the settings
// values that must survive while the remote store is unreachable.
package localstore

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/shopspring/decimal"
)

type fileContent struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
}

type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// InitialCapital returns the stored value and whether one exists.
func (s *FileStore) InitialCapital() (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}

	content := fileContent{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return decimal.Zero, false, err
	}

	return content.InitialCapital, true, nil
}

func (s *FileStore) SaveInitialCapital(amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(fileContent{InitialCapital: amount})
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, raw, 0o600)
}

// Clear removes the fallback file after a successful reconcile.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
