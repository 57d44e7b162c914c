package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"flakeview/internal/common"
	"flakeview/pkg/errors"
)

const (
	// DefaultMaxHistory is the number of records kept per scope.
	DefaultMaxHistory = 100
	// DefaultRetentionDays is how long records are kept.
	DefaultRetentionDays = 90
)

// Manager manages deployment history
type Manager struct {
	storageDir    string
	mu            sync.RWMutex
	records       map[string]*Record
	maxHistory    int
	retentionDays int
	now           func() time.Time
}

// NewManager creates a history manager backed by dir and loads existing records.
func NewManager(dir string) (*Manager, error) {
	cleaned, err := common.CleanPath(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid history directory").
			WithContext("path", dir)
	}
	if err := os.MkdirAll(cleaned, common.DirPermissionSecure); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create history directory").
			WithContext("path", cleaned)
	}

	m := &Manager{
		storageDir:    cleaned,
		records:       make(map[string]*Record),
		maxHistory:    DefaultMaxHistory,
		retentionDays: DefaultRetentionDays,
		now:           time.Now,
	}

	if err := m.load(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to load deployment history").
			WithContext("path", cleaned)
	}

	return m, nil
}

// DefaultDir is ~/.flakeview/history.
func DefaultDir() string {
	return filepath.Join(common.AppDir(), "history")
}

// SetRetention overrides how many records are kept per scope and for how
// many days. Zero or negative values leave the setting unchanged.
func (m *Manager) SetRetention(maxHistory, retentionDays int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxHistory > 0 {
		m.maxHistory = maxHistory
	}
	if retentionDays > 0 {
		m.retentionDays = retentionDays
	}
}

// Save records a deployment, linking it to the previous run in the same scope.
func (m *Manager) Save(record *Record) error {
	if record == nil || record.ID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "Deployment record has no ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := m.latest(record.Scope); prev != nil && prev.ID != record.ID {
		record.PreviousID = prev.ID
	}

	m.records[record.ID] = record

	if err := m.write(record); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to save deployment record").
			WithContext("deployment_id", record.ID)
	}

	m.cleanup()
	return nil
}

// Get retrieves a record by ID
func (m *Manager) Get(id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[id]
	if !exists {
		return nil, errors.New(errors.ErrCodeNotFound, "deployment not found").
			WithContext("deployment_id", id)
	}
	return record, nil
}

// Latest returns the most recent record for scope.
func (m *Manager) Latest(scope Scope) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if latest := m.latest(scope); latest != nil {
		return latest, nil
	}
	return nil, errors.New(errors.ErrCodeNotFound, "No previous deployment found").
		WithContext("target", scope.Target).
		WithContext("database", scope.Database).
		WithContext("schema", scope.Schema).
		WithSuggestions("Run 'flakeview history' to list recorded deployments")
}

// List returns records newest first. limit <= 0 returns all of them.
func (m *Manager) List(limit int) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record)
	}
	sortNewestFirst(records)

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

func (m *Manager) load() error {
	files, err := filepath.Glob(filepath.Join(m.storageDir, "deployment-*.json"))
	if err != nil {
		return err
	}

	for _, file := range files {
		record, err := m.read(file)
		if err != nil {
			// unreadable records are skipped
			continue
		}
		m.records[record.ID] = record
	}
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.storageDir, fmt.Sprintf("deployment-%s.json", id))
}

func (m *Manager) write(record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path(record.ID), data, common.FilePermissionSecure)
}

func (m *Manager) read(path string) (*Record, error) {
	validatedPath, err := common.ValidatePath(path, m.storageDir)
	if err != nil {
		return nil, fmt.Errorf("invalid file path: %w", err)
	}

	data, err := os.ReadFile(validatedPath) // #nosec G304 - path is validated
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	if record.ID == "" {
		return nil, fmt.Errorf("record %s has no id", path)
	}
	return &record, nil
}

func (m *Manager) latest(scope Scope) *Record {
	var latest *Record
	for _, record := range m.records {
		if record.Scope.key() != scope.key() {
			continue
		}
		if latest == nil || record.StartTime.After(latest.StartTime) {
			latest = record
		}
	}
	return latest
}

func (m *Manager) remove(id string) {
	delete(m.records, id)
	_ = os.Remove(m.path(id))
}

func (m *Manager) cleanup() {
	cutoff := m.now().AddDate(0, 0, -m.retentionDays)
	for id, record := range m.records {
		if record.StartTime.Before(cutoff) {
			m.remove(id)
		}
	}

	byScope := make(map[string][]*Record)
	for _, record := range m.records {
		key := record.Scope.key()
		byScope[key] = append(byScope[key], record)
	}

	for _, records := range byScope {
		if len(records) <= m.maxHistory {
			continue
		}
		sortNewestFirst(records)
		for _, record := range records[m.maxHistory:] {
			m.remove(record.ID)
		}
	}
}

func sortNewestFirst(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].StartTime.Equal(records[j].StartTime) {
			return records[i].ID > records[j].ID
		}
		return records[i].StartTime.After(records[j].StartTime)
	})
}
