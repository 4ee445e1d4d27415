package config

import (
	"os"
	"strconv"
	"time"
)

func envOr(name, fallback string) string {
	value, isSet := os.LookupEnv(name)
	if !isSet {
		return fallback
	}
	return value
}

func envInt(name string, fallback int) int {
	value, isSet := os.LookupEnv(name)
	if !isSet {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	value, isSet := os.LookupEnv(name)
	if !isSet {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
