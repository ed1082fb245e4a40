package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type secrets struct {
	APIToken string `json:"api_token"`
}

func secretsFilePath() string {
	return filepath.Join(configDir(), "secrets.json")
}

// APIToken returns the bearer token for the management API. The
// KEYPRINT_API_TOKEN environment variable wins; otherwise the token is read
// from the secrets file, generated on first use.
func APIToken() (string, error) {
	if token := os.Getenv("KEYPRINT_API_TOKEN"); token != "" {
		return token, nil
	}
	return tokenFromFile(secretsFilePath())
}

func tokenFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var s secrets
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("parsing secrets file %s: %w", path, err)
		}
		if s.APIToken != "" {
			return s.APIToken, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading secrets file %s: %w", path, err)
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets{APIToken: token}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("writing secrets file %s: %w", path, err)
	}
	return token, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
