package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const resetMarker = ".RESET"

// MarkResetRequired persists the reset marker so the next boot discards
// stored credentials before reconnecting. Used on fatal disconnects.
func MarkResetRequired(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("transport: mark reset: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, resetMarker), []byte("1"), 0o600); err != nil {
		return fmt.Errorf("transport: mark reset: %w", err)
	}
	return nil
}

// ConsumeReset checks for the reset marker. If present it removes the
// stored credentials and the marker, and reports true so the caller can
// log that a full re-pairing is required.
func ConsumeReset(dir string) (bool, error) {
	marker := filepath.Join(dir, resetMarker)
	if _, err := os.Stat(marker); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("transport: check reset marker: %w", err)
	}

	if err := ClearCredentials(dir); err != nil {
		return false, err
	}
	if err := os.Remove(marker); err != nil {
		return false, fmt.Errorf("transport: remove reset marker: %w", err)
	}
	return true, nil
}
