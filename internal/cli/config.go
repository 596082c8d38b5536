package cli

import (
	"os"
)

// Config holds CLI configuration shared by every command
type Config struct {
	ServerURL  string
	ConfigPath string
	Output     string
	Verbose    bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:  getEnvOrDefault("WORDGROUPS_SERVER", "http://localhost:8080"),
		ConfigPath: os.Getenv("WORDGROUPS_CONFIG"),
		Output:     "text",
		Verbose:    false,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
