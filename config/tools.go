package config

// ToolRepositoryConfig configures one tool repository (a "local" in-process
// set of sandbox tools, or an "mcp" server to discover tools from).
type ToolRepositoryConfig struct {
	Name    string                 `yaml:"name"`
	Type    string                 `yaml:"type"` // "local" | "mcp"
	Command string                 `yaml:"command,omitempty"`
	Args    []string               `yaml:"args,omitempty"`
	URL     string                 `yaml:"url,omitempty"`
	Options map[string]interface{} `yaml:"options,omitempty"`
}

// ToolConfigs is the top-level tool-registry configuration section.
type ToolConfigs struct {
	Repositories []ToolRepositoryConfig `yaml:"repositories"`

	SearchTimeoutSeconds int `yaml:"search_timeout_seconds"`
	FetchTimeoutSeconds  int `yaml:"fetch_timeout_seconds"`
	CodeTimeoutSeconds   int `yaml:"code_timeout_seconds"`
	MaxFetchChars        int `yaml:"max_fetch_chars"`
}

func (c *ToolConfigs) SetDefaults() {
	if c.SearchTimeoutSeconds == 0 {
		c.SearchTimeoutSeconds = 15
	}
	if c.FetchTimeoutSeconds == 0 {
		c.FetchTimeoutSeconds = 20
	}
	if c.CodeTimeoutSeconds == 0 {
		c.CodeTimeoutSeconds = 30
	}
	if c.MaxFetchChars == 0 {
		c.MaxFetchChars = 15000
	}
}

func (c *ToolConfigs) Validate() error {
	return nil
}
