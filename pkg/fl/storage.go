package fl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Snapshotter persists aggregation results on a best-effort basis.
type Snapshotter interface {
	SaveModel(model GlobalModel) error
	LatestModel() (*GlobalModel, error)
	SaveRecord(record RoundRecord) error
	Records() ([]RoundRecord, error)
}

type PersistentStorage struct {
	roundsDir string
	modelsDir string
	mu        sync.RWMutex
}

func NewPersistentStorage(dir string) (*PersistentStorage, error) {
	roundsDir := filepath.Join(dir, "rounds")
	modelsDir := filepath.Join(dir, "models")
	if err := os.MkdirAll(roundsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rounds directory: %w", err)
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &PersistentStorage{
		roundsDir: roundsDir,
		modelsDir: modelsDir,
	}, nil
}

func (ps *PersistentStorage) SaveModel(model GlobalModel) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	return writeJSON(filepath.Join(ps.modelsDir, fmt.Sprintf("model_v%d.json", model.Round)), model)
}

// LatestModel returns the model with the highest round number, or nil when
// nothing has been saved yet.
func (ps *PersistentStorage) LatestModel() (*GlobalModel, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	versions, err := scan(ps.modelsDir, "model_v%d.json")
	if err != nil || len(versions) == 0 {
		return nil, err
	}

	var model GlobalModel
	if err := readJSON(filepath.Join(ps.modelsDir, fmt.Sprintf("model_v%d.json", versions[len(versions)-1])), &model); err != nil {
		return nil, err
	}

	return &model, nil
}

func (ps *PersistentStorage) SaveRecord(record RoundRecord) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	return writeJSON(filepath.Join(ps.roundsDir, fmt.Sprintf("round_%d.json", record.Round)), record)
}

func (ps *PersistentStorage) Records() ([]RoundRecord, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	rounds, err := scan(ps.roundsDir, "round_%d.json")
	if err != nil {
		return nil, err
	}

	records := make([]RoundRecord, 0, len(rounds))
	for _, r := range rounds {
		var rec RoundRecord
		if err := readJSON(filepath.Join(ps.roundsDir, fmt.Sprintf("round_%d.json", r)), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

func scan(dir, pattern string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var versions []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var v uint64
		if _, err := fmt.Sscanf(entry.Name(), pattern, &v); err == nil {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	return versions, nil
}

// writeJSON replaces path atomically so a crash never leaves a torn file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return nil
}
