package ir

// Config represents the top-level configuration.
type Config struct {
	Region    string          `json:"region"`
	Backend   *BackendConfig  `json:"backend"`
	Functions []*ResourceSpec `json:"functions"`
}

// BackendConfig holds configuration for a state backend.
type BackendConfig struct {
	Type   string            `json:"type"` // "local", "s3"
	Config map[string]string `json:"config"`
}

// Function returns the function with the given name, or nil.
func (c *Config) Function(name string) *ResourceSpec {
	for _, fn := range c.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}
