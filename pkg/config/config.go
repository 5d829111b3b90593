package config

import "os"

// Config holds server configuration.
type Config struct {
	Port         string
	LogLevel     string
	DatabaseURL  string
	ReceiptDB    string
	RedisAddr    string
	ProfilesDir  string
	ProfileName  string
	RegistryPath string
	AttestSecret string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://helix@localhost:5433/helix?sslmode=disable"
	}

	receiptDB := os.Getenv("RECEIPT_DB_PATH")
	if receiptDB == "" {
		receiptDB = "data/decisions.db"
	}

	profilesDir := os.Getenv("POLICY_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	profileName := os.Getenv("POLICY_PROFILE")
	if profileName == "" {
		profileName = "production"
	}

	registryPath := os.Getenv("KNOWLEDGE_REGISTRY_PATH")
	if registryPath == "" {
		registryPath = "data/registry.json"
	}

	return &Config{
		Port:         port,
		LogLevel:     logLevel,
		DatabaseURL:  dbURL,
		ReceiptDB:    receiptDB,
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		ProfilesDir:  profilesDir,
		ProfileName:  profileName,
		RegistryPath: registryPath,
		AttestSecret: os.Getenv("ATTESTATION_SECRET"),
	}
}
