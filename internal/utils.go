package internal

import (
	"fmt"
	"math"
	"strings"
)

// Telemetry topics follow {prefix}/{deviceId}/data; commands go to
// {prefix}/{deviceId}/{suffix}.

func extractDeviceID(topic, prefix string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != prefix || parts[1] == "" || parts[2] != "data" {
		return "", fmt.Errorf("topic does not match telemetry pattern: %v", topic)
	}
	return parts[1], nil
}

func telemetryWildcard(prefix string) string {
	return prefix + "/+/data"
}

func telemetryTopic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + "/data"
}

func commandTopic(prefix, deviceID, suffix string) string {
	return prefix + "/" + deviceID + "/" + suffix
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
