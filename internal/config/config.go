package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string
	DataDir  string
	DBPath   string

	// change feed
	PostgresDSN   string
	NotifyChannel string
	BroadcastURL  string

	// inference
	LLMProvider string
	LLMModel    string
	LLMAPIKey   string

	// image generation
	ImageGenURL   string
	ImageGenToken string
}

// Load reads configuration from the environment with WORLDSYNC_ prefixed
// variables, after seeding the environment from an optional .env file. When
// WORLDSYNC_CONFIG_FILE points at a YAML file its values fill anything the
// environment left empty.
func Load() (Config, error) {
	loadDotEnv(".env")
	dataDir := getEnv("WORLDSYNC_DATA_DIR", "data")
	cfg := Config{
		HTTPAddr: getEnv("WORLDSYNC_HTTP_ADDR", ":8080"),
		DataDir:  dataDir,
		DBPath:   getEnv("WORLDSYNC_DB_PATH", filepath.Join(dataDir, "worldsync.db")),

		PostgresDSN:   getEnv("WORLDSYNC_POSTGRES_DSN", ""),
		NotifyChannel: getEnv("WORLDSYNC_NOTIFY_CHANNEL", "npc_changes"),
		BroadcastURL:  getEnv("WORLDSYNC_BROADCAST_URL", ""),

		LLMProvider: getEnv("WORLDSYNC_LLM_PROVIDER", "openai"),
		LLMModel:    getEnv("WORLDSYNC_LLM_MODEL", ""),
		LLMAPIKey:   getEnv("WORLDSYNC_LLM_API_KEY", ""),

		ImageGenURL:   getEnv("WORLDSYNC_IMAGEGEN_URL", ""),
		ImageGenToken: getEnv("WORLDSYNC_IMAGEGEN_TOKEN", ""),
	}

	if path := os.Getenv("WORLDSYNC_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

type fileConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	DataDir  string `yaml:"data_dir"`
	DBPath   string `yaml:"db_path"`

	Feed struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		NotifyChannel string `yaml:"notify_channel"`
		BroadcastURL  string `yaml:"broadcast_url"`
	} `yaml:"feed"`

	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`

	ImageGen struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"imagegen"`
}

// applyFile fills fields the environment did not set explicitly. Environment
// variables always win over the file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	fillIfUnset("WORLDSYNC_HTTP_ADDR", &c.HTTPAddr, fc.HTTPAddr)
	fillIfUnset("WORLDSYNC_DATA_DIR", &c.DataDir, fc.DataDir)
	fillIfUnset("WORLDSYNC_DB_PATH", &c.DBPath, fc.DBPath)
	fillIfUnset("WORLDSYNC_POSTGRES_DSN", &c.PostgresDSN, fc.Feed.PostgresDSN)
	fillIfUnset("WORLDSYNC_NOTIFY_CHANNEL", &c.NotifyChannel, fc.Feed.NotifyChannel)
	fillIfUnset("WORLDSYNC_BROADCAST_URL", &c.BroadcastURL, fc.Feed.BroadcastURL)
	fillIfUnset("WORLDSYNC_LLM_PROVIDER", &c.LLMProvider, fc.LLM.Provider)
	fillIfUnset("WORLDSYNC_LLM_MODEL", &c.LLMModel, fc.LLM.Model)
	fillIfUnset("WORLDSYNC_LLM_API_KEY", &c.LLMAPIKey, fc.LLM.APIKey)
	fillIfUnset("WORLDSYNC_IMAGEGEN_URL", &c.ImageGenURL, fc.ImageGen.URL)
	fillIfUnset("WORLDSYNC_IMAGEGEN_TOKEN", &c.ImageGenToken, fc.ImageGen.Token)
	return nil
}

func fillIfUnset(envKey string, dest *string, value string) {
	if value == "" {
		return
	}
	if _, set := os.LookupEnv(envKey); set {
		return
	}
	*dest = value
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
