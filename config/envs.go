package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application's configuration values: the mandatory CLI
// surface (port, maze template) plus ambient operational knobs that are
// never part of the wire protocol contract.
type Config struct {
	Port         int    // TCP port to listen on. Mandatory, via -p.
	TemplatePath string // Optional maze template file, via -t.

	LogLevel string // debug|info|warn|error, default "info".
	LogDir   string // If non-empty, logs also rotate to <dir>/mazewar.log.
}

// Load parses command-line flags and layers in optional environment
// overrides for the ambient knobs. The two settings the protocol itself
// cares about, port and template, are CLI-only; nothing ambient becomes
// a silent new requirement.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("%s[CONFIG]%s [INFO] no .env file loaded: %v", ColorGreen, ColorReset, err)
	}

	fs := flag.NewFlagSet("mazewar", flag.ContinueOnError)
	port := fs.Int("p", -1, "TCP port to listen on (required)")
	template := fs.String("t", "", "path to a maze template file (optional)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *port <= 0 {
		return Config{}, fmt.Errorf("config: -p <port> is required and must be a positive integer")
	}

	cfg := Config{
		Port:         *port,
		TemplatePath: *template,
		LogLevel:     strings.ToLower(getEnvDefault("MAZEWAR_LOG_LEVEL", "info")),
		LogDir:       os.Getenv("MAZEWAR_LOG_DIR"),
	}
	return cfg, nil
}

// getEnvDefault returns the environment variable's value, or def if unset or empty.
func getEnvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
