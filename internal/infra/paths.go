package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	AppName = "market-lab"
	Version = "0.4.0"

	// WorkspaceEnv points the workspace somewhere explicit, e.g. in CI.
	WorkspaceEnv = "MARKETLAB_WORKSPACE"

	devWorkspace = "_workspace"
	lockName     = "instance.lock"
)

// ErrWorkspaceLocked is returned when another run holds the workspace.
var ErrWorkspaceLocked = errors.New("workspace is locked by another run")

// GetWorkspaceDir picks where journals, snapshots and dumps live:
// $MARKETLAB_WORKSPACE, then ./_workspace when present, then the user data dir.
func GetWorkspaceDir() string {
	if dir := os.Getenv(WorkspaceEnv); dir != "" {
		return dir
	}
	if fi, err := os.Stat(devWorkspace); err == nil && fi.IsDir() {
		return devWorkspace
	}
	base, err := dataHome()
	if err != nil {
		return devWorkspace
	}
	return filepath.Join(base, AppName)
}

// dataHome follows XDG on Linux and the platform config root elsewhere.
func dataHome() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return xdg, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
	return os.UserConfigDir()
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// CreateLockFile claims workDir for this process and returns the release func.
// The lock holds the owner's pid.
func CreateLockFile(workDir string) (func(), error) {
	path := filepath.Join(workDir, lockName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, fs.ErrExist) {
		if pid, perr := LockOwner(workDir); perr == nil {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrWorkspaceLocked, pid, path)
		}
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", werr)
	}
	return func() { os.Remove(path) }, nil
}

// LockOwner reports the pid recorded in the workspace lock.
func LockOwner(workDir string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(workDir, lockName))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("malformed lock file: %w", err)
	}
	return pid, nil
}

// ResolveConfigPath returns configs/config.yaml or the user config copy,
// or "" so LoadConfig falls back to defaults.
func ResolveConfigPath() string {
	candidates := []string{filepath.Join("configs", "config.yaml")}
	if root, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(root, AppName, "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ResolveStoragePaths fills empty storage locations with workspace defaults.
func ResolveStoragePaths(cfg *Config, workDir string) {
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = filepath.Join(workDir, "runs.db")
	}
	if cfg.Storage.SnapshotDir == "" {
		cfg.Storage.SnapshotDir = filepath.Join(workDir, "snapshots")
	}
}
