package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/chronicle-network/ledger-go/internal/anchor"
)

// Config holds application configuration from environment variables.
type Config struct {
	DataDir            string
	HTTPAddr           string
	BaseURL            string
	Environment        string
	MaxBodyBytes       int64
	MaxAttachmentBytes int64
	Stampers           []anchor.Stamper
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	c := Config{
		DataDir:            envOr("CHRONICLE_DATA_DIR", "data"),
		HTTPAddr:           envOr("CHRONICLE_HTTP_ADDR", ":8080"),
		BaseURL:            envOr("CHRONICLE_BASE_URL", "http://localhost:8080/"),
		Environment:        envOr("CHRONICLE_ENV", "production"),
		MaxBodyBytes:       envInt64("CHRONICLE_MAX_BODY_BYTES", 32*1024*1024),
		MaxAttachmentBytes: envInt64("CHRONICLE_MAX_ATTACHMENT_BYTES", 10*1024*1024),
		Stampers:           parseStampers(os.Getenv("CHRONICLE_STAMPERS")),
	}
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// parseStampers parses "name=url,name=url" into stamper configs. Entries
// without a name=url shape are skipped.
func parseStampers(v string) []anchor.Stamper {
	if v == "" {
		return nil
	}
	var stampers []anchor.Stamper
	for _, part := range strings.Split(v, ",") {
		name, url, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || url == "" {
			continue
		}
		stampers = append(stampers, anchor.Stamper{Name: name, URL: url})
	}
	return stampers
}
