package domain

import "path/filepath"

const (
	// StateDirName is the name of the internal project directory.
	StateDirName = ".oxbridge"

	// StoreDirName is the name of the build record store directory.
	StoreDirName = "records"

	// ConfigFileName is the name of the project configuration file.
	ConfigFileName = "oxbridge.yaml"

	// ManifestFileName is the name of a Cargo package manifest.
	ManifestFileName = "Cargo.toml"

	// LockFileName is the name of a Cargo workspace lockfile.
	LockFileName = "Cargo.lock"

	// TargetDirName is the directory the driver builds into, relative to the workspace root.
	TargetDirName = "target"

	// BridgeTargetDirName is the directory below TargetDirName owned by the bridge.
	BridgeTargetDirName = "oxbridge"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultStorePath returns the build record store directory below a project root.
func DefaultStorePath(root string) string {
	return filepath.Join(root, StateDirName, StoreDirName)
}

// DefaultTargetDir returns the bridge-owned target directory below a workspace root.
func DefaultTargetDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, TargetDirName, BridgeTargetDirName)
}
