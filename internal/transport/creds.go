package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const credsFile = "creds.json"

// Credentials is the persisted pairing state for the bridge session.
// The blob is issued by the bridge and stored verbatim; only the token is
// interpreted client-side (session resumption).
type Credentials struct {
	DeviceID string          `json:"device_id"`
	Token    string          `json:"token"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// LoadCredentials reads the stored credentials from the session directory.
// Returns (nil, nil) when no credentials exist yet (pairing required).
func LoadCredentials(dir string) (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(dir, credsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrCredentials, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrCredentials, err)
	}
	return &creds, nil
}

// SaveCredentials persists the credential blob issued by the bridge.
func SaveCredentials(dir string, raw json.RawMessage) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: mkdir: %w", ErrCredentials, err)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return fmt.Errorf("%w: decode issued credentials: %w", ErrCredentials, err)
	}
	creds.Raw = raw

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrCredentials, err)
	}
	if err := os.WriteFile(filepath.Join(dir, credsFile), data, 0o600); err != nil {
		return fmt.Errorf("%w: write: %w", ErrCredentials, err)
	}
	return nil
}

// ClearCredentials removes any stored credentials. Missing files are not
// an error.
func ClearCredentials(dir string) error {
	err := os.Remove(filepath.Join(dir, credsFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove: %w", ErrCredentials, err)
	}
	return nil
}
