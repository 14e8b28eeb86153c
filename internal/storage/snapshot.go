package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/itrapnauskas/market-simulator/internal/domain"
)

// ManipulatorState is the manipulator part of a snapshot.
type ManipulatorState struct {
	Strategy      string          `json:"strategy"`
	Phase         string          `json:"phase"`
	EnteredAt     int             `json:"entered_at"`
	RoundsInPhase int             `json:"rounds_in_phase"`
	Cycle         int             `json:"cycle"`
	Position      domain.Position `json:"position"`
	Equity        string          `json:"equity"`
}

// Snapshot represents a point-in-time capture of a run.
type Snapshot struct {
	RunID       string             `json:"run_id"`
	Seq         uint64             `json:"seq"` // last settled day
	TsUnix      int64              `json:"ts"`
	Last        domain.MarketState `json:"last"`
	Accounts    []domain.Account   `json:"accounts"`
	Manipulator *ManipulatorState  `json:"manipulator,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// SnapshotManager handles saving and loading snapshots.
type SnapshotManager struct {
	dir string
}

// NewSnapshotManager creates a snapshot manager rooted at dir.
func NewSnapshotManager(dir string) *SnapshotManager {
	return &SnapshotManager{dir: dir}
}

// Dir returns the snapshot directory.
func (sm *SnapshotManager) Dir() string {
	return sm.dir
}

// Save writes a snapshot to disk as snapshot_<seq>_<ts>.json.
func (sm *SnapshotManager) Save(snap *Snapshot) error {
	_, err := sm.write(fmt.Sprintf("snapshot_%d_%d.json", snap.Seq, snap.TsUnix), snap)
	if err == nil {
		slog.Info("Snapshot saved",
			slog.String("run_id", snap.RunID),
			slog.Uint64("seq", snap.Seq))
	}
	return err
}

// SaveDump writes snap under a fixed name, replacing any previous file.
func (sm *SnapshotManager) SaveDump(name string, snap *Snapshot) (string, error) {
	return sm.write(name, snap)
}

func (sm *SnapshotManager) write(name string, snap *Snapshot) (string, error) {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	path := filepath.Join(sm.dir, name)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

type snapFile struct {
	path string
	seq  uint64
}

func (sm *SnapshotManager) list() ([]snapFile, error) {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		return nil, err
	}
	var files []snapFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var seq uint64
		var ts int64
		if _, err := fmt.Sscanf(entry.Name(), "snapshot_%d_%d.json", &seq, &ts); err != nil {
			continue
		}
		files = append(files, snapFile{path: filepath.Join(sm.dir, entry.Name()), seq: seq})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq > files[j].seq })
	return files, nil
}

// LoadLatest loads the snapshot with the highest sequence.
// Returns nil if no snapshot exists.
func (sm *SnapshotManager) LoadLatest() (*Snapshot, error) {
	files, err := sm.list()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	return Load(files[0].path)
}

// Load reads one snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// CreateSnapshot captures the run at the given day. Accounts are copied.
func CreateSnapshot(runID string, last domain.MarketState, accounts []domain.Account, m *ManipulatorState) *Snapshot {
	accts := make([]domain.Account, len(accounts))
	copy(accts, accounts)
	return &Snapshot{
		RunID:       runID,
		Seq:         uint64(last.Day),
		TsUnix:      time.Now().Unix(),
		Last:        last,
		Accounts:    accts,
		Manipulator: m,
	}
}

// Cleanup removes old snapshots, keeping only the latest N.
func (sm *SnapshotManager) Cleanup(keepCount int) error {
	files, err := sm.list()
	if err != nil {
		return err
	}
	for i := keepCount; i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			slog.Warn("Failed to remove old snapshot", slog.String("path", files[i].path))
		} else {
			slog.Debug("Removed old snapshot", slog.String("path", files[i].path))
		}
	}
	return nil
}
