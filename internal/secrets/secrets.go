// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: openai-api-key, anthropic-api-key, openalex-email, webhook-url.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// Key file names.
const (
	OpenAIKey    = "openai-api-key"
	AnthropicKey = "anthropic-api-key"
	OpenAlexMail = "openalex-email"
	WebhookURL   = "webhook-url"
)

// envFallback maps key names to environment variables consulted when the
// secrets directory has no file for the key.
var envFallback = map[string]string{
	OpenAIKey:    "OPENAI_API_KEY",
	AnthropicKey: "ANTHROPIC_API_KEY",
	OpenAlexMail: "OPENALEX_EMAIL",
	WebhookURL:   "WEBHOOK_URL",
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadEnv reads a dotenv file into the process environment. Variables
// already set are left alone. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Lookup returns the secret for key from the map, falling back to its
// environment variable.
func Lookup(secrets map[string]string, key string) string {
	if v := secrets[key]; v != "" {
		return v
	}
	if env, ok := envFallback[key]; ok {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

// Apply fills credentials the configuration leaves empty. Values already set
// in cfg win over secrets.
func Apply(cfg *types.Config, secrets map[string]string) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.APIKey = Lookup(secrets, AnthropicKey)
		case "openai":
			cfg.LLM.APIKey = Lookup(secrets, OpenAIKey)
		}
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = Lookup(secrets, OpenAIKey)
	}
	if cfg.Fetch.OpenAlexEmail == "" {
		cfg.Fetch.OpenAlexEmail = Lookup(secrets, OpenAlexMail)
	}
	if cfg.Notify.WebhookURL == "" {
		cfg.Notify.WebhookURL = Lookup(secrets, WebhookURL)
	}
}
