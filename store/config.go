package store

// Config holds query limits shared by every backend.
type Config struct {
	// DefaultLimit is the page size used when a query asks for none.
	// Default: 20
	DefaultLimit int

	// MaxLimit caps the page size of any query.
	// Default: 500
	MaxLimit int

	// TablePrefix is prepended to collection names by backends that map
	// collections to tables.
	// Default: "relval_"
	TablePrefix string
}

// DefaultConfig returns the limits used by the web API.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: 20,
		MaxLimit:     500,
		TablePrefix:  "relval_",
	}
}

// Validate ensures config values are within acceptable bounds.
func (c *Config) Validate() {
	if c.MaxLimit < 1 {
		c.MaxLimit = 500
	}
	if c.DefaultLimit < 1 {
		c.DefaultLimit = 20
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
}
