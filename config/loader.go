package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	ServiceFile = "service.json"
	LLMFile     = "llm.json"
	MongoFile   = "mongo.json"
	CacheFile   = "cache.json"

	// DefaultDir is used when neither --config-dir nor DEX_CONFIG_DIR is set.
	DefaultDir = "~/Dexter/config"
)

// osUserHomeDir is swapped out in tests.
var osUserHomeDir = os.UserHomeDir

var validate = validator.New()

// expandPath resolves paths like "~/" to the user's home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := osUserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// ResolveDir picks the config directory: explicit value, then DEX_CONFIG_DIR, then DefaultDir.
func ResolveDir(dir string) (string, error) {
	if dir == "" {
		dir = os.Getenv("DEX_CONFIG_DIR")
	}
	if dir == "" {
		dir = DefaultDir
	}
	return expandPath(dir)
}

// loadOrCreate reads a JSON file from dir into v. A missing file is written
// with the defaults already held by v.
func loadOrCreate(dir, filename string, v interface{}) error {
	path := filepath.Join(dir, filename)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return writeDefault(path, v)
	}
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", filename, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not decode config file %s: %w", filename, err)
	}
	return nil
}

func writeDefault(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode default config %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("could not write default config %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadAllConfigs loads every config file from dir, creating defaults for
// missing files, then applies .env and environment overrides and validates
// the result.
func LoadAllConfigs(dir string) (*AllConfig, error) {
	resolved, err := ResolveDir(dir)
	if err != nil {
		return nil, err
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	all := &AllConfig{
		Service: DefaultServiceConfig(),
		LLM:     DefaultLLMConfig(),
		Mongo:   DefaultMongoConfig(),
		Cache:   DefaultCacheConfig(),
	}

	files := []struct {
		name string
		v    interface{}
	}{
		{ServiceFile, all.Service},
		{LLMFile, all.LLM},
		{MongoFile, all.Mongo},
		{CacheFile, all.Cache},
	}
	for _, f := range files {
		if err := loadOrCreate(resolved, f.name, f.v); err != nil {
			return nil, err
		}
	}

	applyEnv(all)

	if err := Validate(all); err != nil {
		return nil, err
	}
	return all, nil
}

// LoadMongoConfig loads and validates only mongo.json, for tools that need
// the database and nothing else.
func LoadMongoConfig(dir string) (*MongoConfig, error) {
	resolved, err := ResolveDir(dir)
	if err != nil {
		return nil, err
	}
	_ = godotenv.Load()

	cfg := DefaultMongoConfig()
	if err := loadOrCreate(resolved, MongoFile, cfg); err != nil {
		return nil, err
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.URI = v
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", MongoFile, err)
	}
	return cfg, nil
}

// Validate checks every section of the config.
func Validate(all *AllConfig) error {
	for name, section := range map[string]interface{}{
		ServiceFile: all.Service,
		LLMFile:     all.LLM,
		MongoFile:   all.Mongo,
	} {
		if err := validate.Struct(section); err != nil {
			return fmt.Errorf("invalid config %s: %w", name, err)
		}
	}
	switch all.LLM.Provider {
	case "gemini":
		if all.LLM.GoogleAPIKey == "" {
			return fmt.Errorf("invalid config %s: google_api_key (or GOOGLE_API_KEY) is required for provider gemini", LLMFile)
		}
	case "openai":
		if all.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("invalid config %s: openai_api_key (or OPENAI_API_KEY) is required for provider openai", LLMFile)
		}
	case "ollama":
		if all.LLM.OllamaURL == "" {
			return fmt.Errorf("invalid config %s: ollama_url is required for provider ollama", LLMFile)
		}
	}
	return nil
}

func applyEnv(all *AllConfig) {
	if v := os.Getenv("MONGODB_URI"); v != "" {
		all.Mongo.URI = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		all.LLM.GoogleAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		all.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		all.LLM.OllamaURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		if all.Cache.Local == nil {
			all.Cache.Local = &ConnectionConfig{}
		}
		all.Cache.Local.Addr = v
	}
	if v := os.Getenv("DEX_SYLVR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			all.Service.Server.Port = port
		}
	}
}
