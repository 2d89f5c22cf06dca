package wom

import "time"

// Config holds the external roster service settings
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	GroupID   string        `yaml:"group_id"`
	APIKey    string        `yaml:"api_key"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`

	// Snapshot requests allowed per window before the client blocks
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
}

// DefaultConfig returns the public API endpoint with its documented quota
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.wiseoldman.net/v2",
		UserAgent:         "clanadmin/1.0",
		Timeout:           30 * time.Second,
		RequestsPerWindow: 90,
		Window:            60 * time.Second,
	}
}
