package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	// DefaultMaxSeasons is the season count above which a series is left unmapped.
	DefaultMaxSeasons = 6
	// DefaultMaxSequelHops bounds how many sequel relations are followed per season.
	DefaultMaxSequelHops = 5
	// DefaultRequestsPerSecond is the catalog request budget.
	DefaultRequestsPerSecond = 1.0
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
	Mapping     MappingConfig     `toml:"mapping"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Plex    PlexConfig    `toml:"plex"`
	AniList AniListConfig `toml:"anilist"`
}

// PlexConfig contains the media server address and token.
//
// An empty Sections list means every show section is read. ClientID is the X-Plex-Client-Identifier
// used by the PIN sign-in; it is generated on first use and kept so plex.tv sees one device.
type PlexConfig struct {
	URL      string   `toml:"url"`
	Token    string   `toml:"token"`
	ClientID string   `toml:"client_id"`
	Sections []string `toml:"sections"`
}

// EnsureClientID generates the Plex client identifier when none is stored and reports whether it did.
func (c *PlexConfig) EnsureClientID() bool {
	if c.ClientID != "" {
		return false
	}
	c.ClientID = GenerateID()
	return true
}

// AniListConfig contains AniList OAuth2 credentials and the stored access token.
type AniListConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	Token        string `toml:"token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the local OAuth callback listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SyncConfig controls how computed statuses are pushed to the tracker.
type SyncConfig struct {
	UpdatePlanning    bool    `toml:"update_planning"`
	DryRun            bool    `toml:"dry_run"`
	IntervalMinutes   int     `toml:"interval_minutes"`
	LockPath          string  `toml:"lock_path"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	CacheTTLHours     int     `toml:"cache_ttl_hours"`
}

// MappingConfig holds the season-matching heuristics.
type MappingConfig struct {
	MaxSeasons    int `toml:"max_seasons"`
	MaxSequelHops int `toml:"max_sequel_hops"`
}

// Map returns the AniList credentials as the key/value set expected by the catalog service.
func (c AniListConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
		"access_token":  c.Token,
	}
}

// Update stores the access token from a completed authorization.
func (c *AniListConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrInvalidCredentials)
	}
	c.Token = token.AccessToken
	return nil
}

// Limits returns the mapping heuristics with defaults applied to unset values.
func (c MappingConfig) Limits() (maxSeasons, maxSequelHops int) {
	maxSeasons, maxSequelHops = c.MaxSeasons, c.MaxSequelHops
	if maxSeasons <= 0 {
		maxSeasons = DefaultMaxSeasons
	}
	if maxSequelHops <= 0 {
		maxSequelHops = DefaultMaxSequelHops
	}
	return maxSeasons, maxSequelHops
}

// Rate returns the configured catalog request rate, falling back to [DefaultRequestsPerSecond].
func (c SyncConfig) Rate() float64 {
	if c.RequestsPerSecond <= 0 {
		return DefaultRequestsPerSecond
	}
	return c.RequestsPerSecond
}

// CacheTTL returns how long catalog responses stay cached. Zero keeps them until cleared.
func (c SyncConfig) CacheTTL() time.Duration {
	if c.CacheTTLHours <= 0 {
		return 0
	}
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// Validate reports missing values required to run a sync.
func (c *Config) Validate() error {
	if c.Credentials.Plex.URL == "" {
		return fmt.Errorf("%w: credentials.plex.url is required", ErrInvalidConfig)
	}
	if c.Credentials.Plex.Token == "" {
		return fmt.Errorf("%w: credentials.plex.token is required", ErrMissingCredentials)
	}
	if c.Credentials.AniList.Token == "" {
		return fmt.Errorf("%w: credentials.anilist.token is required (run 'anisync auth anilist')", ErrNotAuthenticated)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// LoadOrDefault loads the config at path when it exists and falls back to [DefaultConfig].
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
