package store

// Config holds configuration for the Store.
type Config struct {
	// TableName is the single table holding every item.
	// Default: "notebook"
	TableName string

	// MaxFilterValues is the number of values sent in one IN filter.
	// Larger filters are split across several queries.
	// Default: 100
	// Max: 100 (DynamoDB operand limit for IN)
	MaxFilterValues int
}

// DefaultConfig returns sensible defaults for a local table.
func DefaultConfig() Config {
	return Config{
		TableName:       "notebook",
		MaxFilterValues: 100,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "notebook"
	}
	if c.MaxFilterValues < 1 || c.MaxFilterValues > 100 {
		c.MaxFilterValues = 100
	}
}
