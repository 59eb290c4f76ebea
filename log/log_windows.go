//go:build windows

package log

import (
	"os"
	"path/filepath"
)

// getDefaultDir is %LOCALAPPDATA%\wavscribe\logs.
func getDefaultDir() (string, error) {
	if base := os.Getenv("LOCALAPPDATA"); base != "" {
		return filepath.Join(base, "wavscribe", "logs"), nil
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cache, "wavscribe", "logs"), nil
}
