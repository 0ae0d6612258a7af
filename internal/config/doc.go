// Package config provides environment-based configuration.
//
// Loads from a .env file (godotenv) when present, then from process
// environment variables. Validates numeric ranges and the overflow policy
// at load time.
package config
