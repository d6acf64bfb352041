package client

import (
	"cmp"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Profile is the per-user config.json written by auth login: credentials plus the
// defaults ask, eval and ingest fall back to when the matching flag is absent.
type Profile struct {
	APIKey         string `json:"api_key"`
	APIURL         string `json:"api_url"`
	TopK           int    `json:"top_k,omitempty"`
	Classification string `json:"classification,omitempty"`
}

const profileFile = "config.json"

// profileDir is replaced in tests.
var profileDir = func() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "groundwork"), nil
}

func ProfilePath() (string, error) {
	dir, err := profileDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, profileFile), nil
}

// LoadProfile returns nil, nil when nothing has been saved yet.
func LoadProfile() (*Profile, error) {
	path, err := ProfilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	p := new(Profile)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return p, nil
}

// SaveProfile replaces the stored profile. It writes a 0600 temp file next to the
// target and renames it over, so readers see either the old or the new key.
func SaveProfile(p *Profile) error {
	if p == nil {
		return errors.New("profile is nil")
	}
	path, err := ProfilePath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	_, werr := tmp.Write(append(data, '\n'))
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), path)
	}
	if werr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write profile: %w", werr)
	}
	return nil
}

// DeleteProfile is a no-op when there is no profile.
func DeleteProfile() error {
	path, err := ProfilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// savedDefaults is the zero Profile when none is stored or it cannot be read; the
// server defaults apply then.
func savedDefaults() Profile {
	p, err := LoadProfile()
	if err != nil || p == nil {
		return Profile{}
	}
	return *p
}

var knownClassifications = []string{"public", "internal", "confidential", "restricted"}

// IsValidAPIKey checks the gw_ + 64 hex shape without contacting the server.
func IsValidAPIKey(key string) bool {
	secret, ok := strings.CutPrefix(key, "gw_")
	if !ok || len(secret) != 64 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}

// CredentialSource names where the API key in use came from.
type CredentialSource string

const (
	SourceFlag    CredentialSource = "flag"
	SourceEnv     CredentialSource = "env"
	SourceProfile CredentialSource = "profile"
	SourceNone    CredentialSource = "none"
)

type credentials struct {
	source CredentialSource
	apiKey string
	apiURL string
}

// resolveCredentials picks the key and URL independently: flag, then
// GROUNDWORK_API_KEY/GROUNDWORK_API_URL (after loading .env), then the saved profile.
// The URL falls back to the local default.
func resolveCredentials(flagKey, flagURL string) (credentials, error) {
	_ = godotenv.Load()

	c := credentials{source: SourceNone, apiKey: flagKey, apiURL: cmp.Or(flagURL, os.Getenv(envAPIURL))}
	if c.apiKey != "" {
		c.source = SourceFlag
	} else if env := os.Getenv(envAPIKey); env != "" {
		c.source, c.apiKey = SourceEnv, env
	}

	if c.apiKey == "" || c.apiURL == "" {
		saved, err := LoadProfile()
		if err != nil {
			return c, err
		}
		if saved != nil {
			if c.apiKey == "" && saved.APIKey != "" {
				c.source, c.apiKey = SourceProfile, saved.APIKey
			}
			c.apiURL = cmp.Or(c.apiURL, saved.APIURL)
		}
	}

	c.apiURL = cmp.Or(c.apiURL, defaultAPIURL)
	return c, nil
}
