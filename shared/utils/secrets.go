package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretsDir - стандартный путь Docker Secrets.
var SecretsDir = "/run/secrets"

// ReadSecret читает секрет из файла Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := filepath.Join(SecretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// SecretOrValue returns the Docker secret secretName if the file exists,
// otherwise fallback (usually the value from the environment). A secret file
// that exists but cannot be used is an error.
func SecretOrValue(secretName, fallback string) (string, error) {
	if secretName == "" {
		return fallback, nil
	}
	secret, err := ReadSecret(secretName)
	if err == nil {
		return secret, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	return "", err
}
