package quota

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides adjusts limits from QUOTA_<PROVIDER>_RPM and
// QUOTA_<PROVIDER>_MIN_GAP environment variables. Invalid values are ignored.
func ApplyEnvOverrides(limits map[string]Limit) {
	for name, limit := range limits {
		prefix := "QUOTA_" + strings.ToUpper(name)
		limit.RequestsPerWindow = getEnvInt(prefix+"_RPM", limit.RequestsPerWindow)
		limit.MinGap = getEnvDuration(prefix+"_MIN_GAP", limit.MinGap)
		limits[name] = limit
	}
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
