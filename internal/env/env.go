package env

import (
	"os"
	"path/filepath"
	"runtime"
)

// WorkDir returns the cache directory shared by all isalgen runs.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".isal"), nil
}

// OutputDir returns the default output directory for the host platform,
// creating it if needed.
func OutputDir() (string, error) {
	workDir, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(workDir, runtime.GOOS+"-"+runtime.GOARCH)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
