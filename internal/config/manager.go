package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// NamespacesConfig holds per-namespace overrides, keyed by the first segment
// of the agent ID (e.g. "acme" for "acme:prod:worker-7").
type NamespacesConfig struct {
	Namespaces map[string]Config `yaml:"namespaces"`
}

// Manager handles dynamic configuration resolution
type Manager struct {
	globalConfig     *Config
	namespaceConfigs map[string]Config
	mu               sync.RWMutex
}

// NewManager loads the master config plus optional namespace overrides
func NewManager(masterPath, namespacesPath string) (*Manager, error) {
	master, err := LoadConfig(masterPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(namespacesPath)
	if err != nil {
		// If overrides file missing, just use empty map
		if os.IsNotExist(err) {
			return &Manager{globalConfig: master, namespaceConfigs: make(map[string]Config)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var nc NamespacesConfig
	if err := yaml.NewDecoder(f).Decode(&nc); err != nil {
		return nil, err
	}

	return &Manager{
		globalConfig:     master,
		namespaceConfigs: nc.Namespaces,
	}, nil
}

// Get returns the effective config for a namespace.
// It merges namespace overrides on top of the global config.
func (m *Manager) Get(namespace string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Start with a copy of the global config
	effective := *m.globalConfig

	if override, ok := m.namespaceConfigs[namespace]; ok {
		if override.Trust.Weights != (TrustWeights{}) {
			effective.Trust.Weights = override.Trust.Weights
		}
		if override.Trust.DecayPerDay != 0 {
			effective.Trust.DecayPerDay = override.Trust.DecayPerDay
		}
		if override.Seal.TTLMinutes != 0 {
			effective.Seal = override.Seal
		}
		if override.Graph.MaxHops != 0 || override.Graph.MinStrength != 0 {
			effective.Graph = override.Graph
		}
		if override.Revocation.QuarantinePenalty != 0 || override.Revocation.AutoWindowMinutes != 0 {
			effective.Revocation = override.Revocation
		}
	}

	return &effective
}
