package env

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func SetupEnvFile() {
	// Look for .env file in project root
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/oakstudio to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	// If we get here, no env file was found
	panic("No .env file found in any of the expected locations")
}

// GetInt parses an integer environment value. Missing, malformed or
// non-positive values fall back to def.
func GetInt(key string, def int) int {
	if v, err := strconv.Atoi(GetEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}

// AppURL returns the externally reachable base URL of this deployment,
// without a trailing slash. Webhook callback URLs are derived from it.
func AppURL() string {
	url := GetEnv("APP_URL", "http://localhost:4000")
	for len(url) > 0 && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	return url
}
