package scope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Identity holds the plain-string author recorded on every Version this
// scope creates (spec.md §3: Version.log.author is an optional string, not
// a cryptographic credential). Stored alongside scope.json so each scope
// records its own author independent of any other scope on the machine.
type Identity struct {
	Author string `json:"author"`
}

const identityFilename = "identity.json"

// LoadOrCreateIdentity reads <scopeDir>/identity.json, creating one the
// first time a scope is opened. BIT_AUTHOR overrides whatever is on disk,
// matching the env-override convention the rest of the pack uses for
// machine-local config (e.g. bureau-foundation-bureau's credentials.go).
// The default, when neither is set, falls back to the host name.
func LoadOrCreateIdentity(scopeDir string) (*Identity, error) {
	path := filepath.Join(scopeDir, identityFilename)

	id, err := readIdentity(path)
	if err != nil {
		return nil, err
	}
	if id == nil {
		id = &Identity{Author: defaultAuthor()}
		if err := writeIdentity(path, id); err != nil {
			return nil, err
		}
	}

	if override := os.Getenv("BIT_AUTHOR"); override != "" {
		id.Author = override
	}
	return id, nil
}

func readIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scope: read identity: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("scope: parse identity: %w", err)
	}
	return &id, nil
}

func writeIdentity(path string, id *Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("scope: marshal identity: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultAuthor() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
