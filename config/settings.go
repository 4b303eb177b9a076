// Package config provides application settings loaded from environment
// variables and an optional YAML file.
//
// Settings are created via New() which handles:
// - Optional YAML config file (LECTERN_CONFIG or an explicit path)
// - Environment variable parsing with validation; env wins over the file
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richinex/lectern/agent"
	"github.com/richinex/lectern/chunker"
	"github.com/richinex/lectern/embed"
	"github.com/richinex/lectern/toolindex"
)

// DefaultStoragePath is where the index cache lives unless overridden.
const DefaultStoragePath = "storage/lectern.db"

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Agent     AgentConfig
	Storage   StorageConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// EmbeddingConfig holds embedder configuration. Offline selects the local
// hashing embedder instead of the OpenAI one.
type EmbeddingConfig struct {
	Model         string
	HashDimension int
	Offline       bool
}

// ChunkingConfig holds document chunking configuration.
type ChunkingConfig struct {
	Size    int
	Overlap int
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	MaxIterations int
	ToolTopK      int
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Path string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.0-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// fileSettings is the YAML schema. Only set fields override defaults.
type fileSettings struct {
	Model          *string  `yaml:"model"`
	MaxTokens      *uint32  `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature"`
	EmbeddingModel *string  `yaml:"embedding_model"`
	HashDimension  *int     `yaml:"hash_dimension"`
	Offline        *bool    `yaml:"offline"`
	ChunkSize      *int     `yaml:"chunk_size"`
	ChunkOverlap   *int     `yaml:"chunk_overlap"`
	MaxIterations  *int     `yaml:"max_iterations"`
	ToolTopK       *int     `yaml:"tool_top_k"`
	StoragePath    *string  `yaml:"storage_path"`
}

// New creates settings for the specified provider. A YAML file named by
// LECTERN_CONFIG is applied first; environment variables override it.
func New(provider string) (Settings, error) {
	return NewFromFile(provider, os.Getenv("LECTERN_CONFIG"))
}

// NewFromFile creates settings with an explicit YAML file path. An empty
// path skips the file.
func NewFromFile(provider, path string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	var file fileSettings
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Settings{}, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	settings := Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       stringOr(file.Model, info.defaultModel),
			MaxTokens:   uint32Or(file.MaxTokens, 4096),
			Temperature: float64Or(file.Temperature, 0.2),
		},
		Embedding: EmbeddingConfig{
			Model:         stringOr(file.EmbeddingModel, embed.DefaultOpenAIModel),
			HashDimension: intOr(file.HashDimension, embed.DefaultHashDimension),
			Offline:       boolOr(file.Offline, false),
		},
		Chunking: ChunkingConfig{
			Size:    intOr(file.ChunkSize, chunker.DefaultChunkSize),
			Overlap: intOr(file.ChunkOverlap, chunker.DefaultOverlap),
		},
		Agent: AgentConfig{
			MaxIterations: intOr(file.MaxIterations, agent.DefaultMaxIterations),
			ToolTopK:      intOr(file.ToolTopK, toolindex.DefaultTopK),
		},
		Storage: StorageConfig{
			Path: stringOr(file.StoragePath, DefaultStoragePath),
		},
	}

	// Environment wins over the file.
	if model := os.Getenv(info.modelEnv); model != "" {
		settings.LLM.Model = model
	}
	if settings.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", settings.LLM.MaxTokens); err != nil {
		return Settings{}, err
	}
	if settings.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", settings.LLM.Temperature); err != nil {
		return Settings{}, err
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		settings.Embedding.Model = model
	}
	if settings.Chunking.Size, err = getEnvInt("CHUNK_SIZE", settings.Chunking.Size); err != nil {
		return Settings{}, err
	}
	if settings.Chunking.Overlap, err = getEnvInt("CHUNK_OVERLAP", settings.Chunking.Overlap); err != nil {
		return Settings{}, err
	}
	if settings.Agent.MaxIterations, err = getEnvInt("AGENT_MAX_ITERATIONS", settings.Agent.MaxIterations); err != nil {
		return Settings{}, err
	}
	if settings.Agent.ToolTopK, err = getEnvInt("TOOL_TOP_K", settings.Agent.ToolTopK); err != nil {
		return Settings{}, err
	}
	if path := os.Getenv("LECTERN_DB"); path != "" {
		settings.Storage.Path = path
	}

	if settings.Chunking.Size <= 0 {
		return Settings{}, fmt.Errorf("chunk size must be positive, got %d", settings.Chunking.Size)
	}
	if settings.Chunking.Overlap < 0 {
		return Settings{}, fmt.Errorf("chunk overlap must not be negative, got %d", settings.Chunking.Overlap)
	}

	return settings, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or configuration is invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Pointer-or-default helpers for file settings

func stringOr(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func uint32Or(p *uint32, def uint32) uint32 {
	if p != nil {
		return *p
	}
	return def
}

func float64Or(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
