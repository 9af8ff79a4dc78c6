// Package credentials manages bearer tokens for remote MCP services.
//
// Tokens are stored in credentials.toml in the .relay/ directory. Resolution
// for a running bridge follows: explicit flag value, then the provider's
// environment variable, then the stored file.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/relay/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// DefaultProvider is the provider name the run command resolves against.
const DefaultProvider = "devin"

// providerEnvVars maps provider names to their expected environment variables.
var providerEnvVars = map[string]string{
	"devin": "DEVIN_API_KEY",
}

// Manager manages reading and writing credentials.toml in the .relay/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .relay/ directory; otherwise the standard dotdir resolution applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// SupportedProviders returns the sorted list of provider names with a known
// environment variable mapping.
func SupportedProviders() []string {
	providers := make([]string, 0, len(providerEnvVars))
	for p := range providerEnvVars {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// IsSupportedProvider returns true if the given provider name is recognized.
func IsSupportedProvider(provider string) bool {
	_, ok := providerEnvVars[provider]
	return ok
}

// EnvVarForProvider returns the environment variable name for a provider.
func EnvVarForProvider(provider string) string {
	return providerEnvVars[provider]
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:   currentVersion,
				Providers: make(map[string]ProviderCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the given provider.
func (m *Manager) SetKey(provider, key string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Providers[provider] = ProviderCredential{APIKey: key}

	return m.Save(creds)
}

// GetKey returns the stored API key for the given provider, or an empty
// string when none is stored.
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Providers[provider].APIKey, nil
}

// ListProviders returns the sorted names of providers with a stored key.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(creds.Providers))
	for p := range creds.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	return providers, nil
}

// RemoveKey removes the stored API key for the given provider.
func (m *Manager) RemoveKey(provider string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Providers, provider)

	return m.Save(creds)
}

// Resolve returns the bearer token for a provider following the precedence
// flag > environment > credentials.toml. An empty string means no token was
// found anywhere; callers decide whether that is fatal.
func (m *Manager) Resolve(provider, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if envVar := providerEnvVars[provider]; envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return v, nil
		}
	}

	return m.GetKey(provider)
}
