package envutil

import (
	"os"
)

// GetPort returns the port number to bind to from the PORT environment variable,
// or the default port (8080) if it has not been set.
func GetPort() string {
	return GetEnvOrFallback("PORT", "8080")
}

// GetEnvOrFallback gets the environment variable for the specified key, but if
// it doesn't find a value, it'll instead return fallback.
func GetEnvOrFallback(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	return value
}
