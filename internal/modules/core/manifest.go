package core

import (
	"strconv"
	"strings"
)

// Manifest defines the structure of a module manifest (inspired by subgraph manifests)
type Manifest struct {
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description,omitempty"`
	Repository  string                 `yaml:"repository,omitempty"`
	DataSources []DataSource           `yaml:"dataSources"`
	Templates   []DataSource           `yaml:"templates,omitempty"` // Instantiated at runtime per address
	Context     map[string]interface{} `yaml:"context,omitempty"`   // Module-specific context
}

// DataSource defines a contract or set of contracts to watch
type DataSource struct {
	Kind    string                 `yaml:"kind"`    // "ethereum/contract"
	Name    string                 `yaml:"name"`    // Friendly name
	Network string                 `yaml:"network"` // "mainnet", "celo"
	Source  DataSourceSource       `yaml:"source"`
	Mapping DataSourceMapping      `yaml:"mapping"`
	Context map[string]interface{} `yaml:"context,omitempty"`
}

// DataSourceSource defines the contract source information
type DataSourceSource struct {
	Address    *string `yaml:"address,omitempty"`    // Contract address (absent for templates)
	ABI        string  `yaml:"abi"`                  // ABI name
	StartBlock *uint64 `yaml:"startBlock,omitempty"` // Block to start indexing from
}

// DataSourceMapping defines how to handle events from this data source
type DataSourceMapping struct {
	Kind          string         `yaml:"kind"`                 // "ethereum/events"
	APIVersion    string         `yaml:"apiVersion,omitempty"` // "0.0.1"
	Language      string         `yaml:"language,omitempty"`
	Entities      []string       `yaml:"entities"`
	EventHandlers []EventHandler `yaml:"eventHandlers"`
}

// EventHandler defines how to handle a specific event
type EventHandler struct {
	Event   string `yaml:"event"`   // Event signature (e.g., "Swap(indexed address,indexed address,int256,int256,uint160,uint128,int24)")
	Handler string `yaml:"handler"` // Handler function name
}

// Template returns the template with the given name.
func (m *Manifest) Template(name string) (*DataSource, bool) {
	for i := range m.Templates {
		if m.Templates[i].Name == name {
			return &m.Templates[i], true
		}
	}
	return nil, false
}

// ContextString reads a string from the manifest context.
func (m *Manifest) ContextString(key string) string {
	v, _ := m.Context[key].(string)
	return v
}

// ContextStrings reads a string list from the manifest context.
func (m *Manifest) ContextStrings(key string) []string {
	raw, _ := m.Context[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ValidateManifest validates a manifest structure
func (m *Manifest) ValidateManifest() error {
	if m.Name == "" {
		return ErrInvalidManifest{Field: "name", Reason: "name is required"}
	}

	if m.Version == "" {
		return ErrInvalidManifest{Field: "version", Reason: "version is required"}
	}

	if len(m.DataSources) == 0 {
		return ErrInvalidManifest{Field: "dataSources", Reason: "at least one data source is required"}
	}

	for i, ds := range m.DataSources {
		if err := ds.validate(); err != nil {
			return ErrInvalidManifest{Field: "dataSources[" + strconv.Itoa(i) + "]", Reason: err.Error()}
		}
		if ds.Source.Address == nil || *ds.Source.Address == "" {
			return ErrInvalidManifest{Field: "dataSources[" + strconv.Itoa(i) + "].source.address", Reason: "address is required"}
		}
	}

	for i, ds := range m.Templates {
		if err := ds.validate(); err != nil {
			return ErrInvalidManifest{Field: "templates[" + strconv.Itoa(i) + "]", Reason: err.Error()}
		}
		if ds.Source.Address != nil {
			return ErrInvalidManifest{Field: "templates[" + strconv.Itoa(i) + "].source.address", Reason: "templates take their address at runtime"}
		}
	}

	return nil
}

func (ds *DataSource) validate() error {
	if ds.Kind == "" {
		return ErrInvalidManifest{Field: "kind", Reason: "kind is required"}
	}

	if ds.Name == "" {
		return ErrInvalidManifest{Field: "name", Reason: "name is required"}
	}

	if ds.Source.ABI == "" {
		return ErrInvalidManifest{Field: "source.abi", Reason: "ABI is required"}
	}

	if len(ds.Mapping.EventHandlers) == 0 {
		return ErrInvalidManifest{Field: "mapping.eventHandlers", Reason: "at least one event handler is required"}
	}

	for _, h := range ds.Mapping.EventHandlers {
		if !strings.Contains(h.Event, "(") || h.Handler == "" {
			return ErrInvalidManifest{Field: "mapping.eventHandlers", Reason: "malformed handler " + h.Event}
		}
	}

	return nil
}

// ErrInvalidManifest is returned when a manifest is invalid
type ErrInvalidManifest struct {
	Field  string
	Reason string
}

func (e ErrInvalidManifest) Error() string {
	return "invalid manifest field " + e.Field + ": " + e.Reason
}
