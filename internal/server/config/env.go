package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from the process environment. A .env file
// in the working directory is loaded first, without overriding variables
// already set in the environment.
//
// Recognized variables:
//
//	ADDRESS          HTTP bind address
//	DATABASE_DSN     full PostgreSQL DSN; takes precedence over the parts
//	DB_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DB
//	                 DSN assembled from parts when DATABASE_DSN is not set
//	SECRET_KEY       JWT signing secret
//	SEED_DEMO_DATA   "1"/"true" enables demo seeding
func parseEnv(config *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("ADDRESS"); v != "" {
		config.Addr = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	} else if dsn := dsnFromParts(); dsn != "" {
		config.DatabaseDSN = dsn
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		config.SecretKey = v
	}
	if v := os.Getenv("SEED_DEMO_DATA"); v == "1" || v == "true" {
		config.SeedDemoData = true
	}
}

// dsnFromParts assembles a DSN from the POSTGRES_* variables the original
// deployment used. Returns "" when no host is configured.
func dsnFromParts() string {
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	db := os.Getenv("POSTGRES_DB")
	if db == "" {
		db = "postgres"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(user), url.QueryEscape(password), host, port, url.PathEscape(db))
}
