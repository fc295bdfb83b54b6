package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirName is the name of both the global (~/.promptbench) and repo-level config directories.
const DirName = ".promptbench"

// Workspace backends.
const (
	WorkspaceBackendSQLite = "sqlite"
	WorkspaceBackendRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	// KeywordCapacity is the maximum number of keywords per polarity collection (K).
	KeywordCapacity int `json:"keyword_capacity"`

	// TagCapacity is the maximum number of tags on a draft (T).
	TagCapacity int `json:"tag_capacity"`

	// WordMaxChars is the stored length of a keyword; longer input is clamped.
	WordMaxChars int `json:"word_max_chars"`

	// TagMaxChars is the stored length of a tag.
	TagMaxChars int `json:"tag_max_chars"`

	// KeywordSyncDelayMS is the debounce window for workspace keyword sync.
	KeywordSyncDelayMS int `json:"keyword_sync_delay_ms"`

	// AutosaveDelayMS is the debounce window for draft autosave.
	// Should be longer than KeywordSyncDelayMS.
	AutosaveDelayMS int `json:"autosave_delay_ms"`

	// MinGenerateVisibleMS is how long the generation loading state stays up at minimum.
	MinGenerateVisibleMS int `json:"min_generate_visible_ms"`

	// WorkspaceBackend selects where scratch workspaces live: "sqlite" or "redis".
	WorkspaceBackend string `json:"workspace_backend,omitempty"`

	// RedisURL is required when WorkspaceBackend is "redis" (e.g. redis://localhost:6379/0).
	RedisURL string `json:"redis_url,omitempty"`

	// WorkspaceTTLHours is how long an idle workspace survives.
	WorkspaceTTLHours int `json:"workspace_ttl_hours,omitempty"`

	// OpenAIModel is the model used by the assistant. The API key comes from OPENAI_API_KEY.
	OpenAIModel string `json:"openai_model,omitempty"`

	// LogMode is "dev" or "prod".
	LogMode string `json:"log_mode,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "draft", "workspace". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		KeywordCapacity:      10,
		TagCapacity:          5,
		WordMaxChars:         40,
		TagMaxChars:          24,
		KeywordSyncDelayMS:   300,
		AutosaveDelayMS:      1500,
		MinGenerateVisibleMS: 800,
		WorkspaceBackend:     WorkspaceBackendSQLite,
		WorkspaceTTLHours:    24,
		OpenAIModel:          "gpt-5-mini",
		LogMode:              "dev",
	}
}

// KeywordSyncDelay returns the keyword sync debounce as a duration.
func (c *Config) KeywordSyncDelay() time.Duration {
	return time.Duration(c.KeywordSyncDelayMS) * time.Millisecond
}

// AutosaveDelay returns the autosave debounce as a duration.
func (c *Config) AutosaveDelay() time.Duration {
	return time.Duration(c.AutosaveDelayMS) * time.Millisecond
}

// MinGenerateVisible returns the minimum loading duration for generation.
func (c *Config) MinGenerateVisible() time.Duration {
	return time.Duration(c.MinGenerateVisibleMS) * time.Millisecond
}

// WorkspaceTTL returns the workspace idle TTL.
func (c *Config) WorkspaceTTL() time.Duration {
	return time.Duration(c.WorkspaceTTLHours) * time.Hour
}

// Validate checks cross-field constraints that Merge cannot fix up.
func (c *Config) Validate() error {
	if c.KeywordCapacity < 1 {
		return errors.New("keyword_capacity must be >= 1")
	}
	if c.TagCapacity < 1 {
		return errors.New("tag_capacity must be >= 1")
	}
	switch c.WorkspaceBackend {
	case WorkspaceBackendSQLite:
	case WorkspaceBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return errors.New("redis_url is required when workspace_backend is redis")
		}
	default:
		return errors.New("workspace_backend must be one of: sqlite, redis")
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.promptbench.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.promptbench) and repo (.promptbench) directories.
// Repo config is found by walking upward from startDir to find the nearest .promptbench/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .promptbench/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		KeywordCapacity:      mergeInt(base.KeywordCapacity, overlay.KeywordCapacity),
		TagCapacity:          mergeInt(base.TagCapacity, overlay.TagCapacity),
		WordMaxChars:         mergeInt(base.WordMaxChars, overlay.WordMaxChars),
		TagMaxChars:          mergeInt(base.TagMaxChars, overlay.TagMaxChars),
		KeywordSyncDelayMS:   mergeInt(base.KeywordSyncDelayMS, overlay.KeywordSyncDelayMS),
		AutosaveDelayMS:      mergeInt(base.AutosaveDelayMS, overlay.AutosaveDelayMS),
		MinGenerateVisibleMS: mergeInt(base.MinGenerateVisibleMS, overlay.MinGenerateVisibleMS),
		WorkspaceBackend:     mergeString(base.WorkspaceBackend, overlay.WorkspaceBackend),
		RedisURL:             mergeString(base.RedisURL, overlay.RedisURL),
		WorkspaceTTLHours:    mergeInt(base.WorkspaceTTLHours, overlay.WorkspaceTTLHours),
		OpenAIModel:          mergeString(base.OpenAIModel, overlay.OpenAIModel),
		LogMode:              mergeString(base.LogMode, overlay.LogMode),
		DBMaxOpenConns:       mergeInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:       mergeInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),
		DisabledTools:        mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
		DisabledTypes:        mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes),
	}
}

// mergeInt returns overlay if non-zero, else base.
func mergeInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeString returns overlay if non-blank, else base.
func mergeString(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
