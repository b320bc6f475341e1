// Package config loads depot.toml and turns it into a wired repository
// manager, cache, session and system.
//
// A configuration file looks like this:
//
//	local = "~/.m2/repository"
//	offline = false
//
//	[transfer]
//	workers = 4
//	retries = 3
//	retry_delay = "1s"
//
//	[collect]
//	workers = 8
//	max_depth = 64
//
//	[scopes]
//	order = ["compile", "runtime", "provided", "system", "test"]
//
//	[cache]
//	backend = "file"   # file | redis | none
//	ttl = "24h"
//
//	[[repository]]
//	id = "central"
//	url = "https://repo.maven.apache.org/maven2"
//	checksum = "warn"
//
// Missing values are filled by [Config.WithDefaults]. The file is looked up
// at $DEPOT_CONFIG, then $XDG_CONFIG_HOME/depot/depot.toml, then
// ~/.config/depot/depot.toml.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
)

const (
	appName = "depot"

	// FileName is the default configuration file name.
	FileName = "depot.toml"

	// EnvConfig names the environment variable holding an explicit config path.
	EnvConfig = "DEPOT_CONFIG"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Defaults.
const (
	DefaultCentralURL      = "https://repo.maven.apache.org/maven2"
	DefaultTransferWorkers = 4
	DefaultRetries         = 3
	DefaultRetryDelay      = time.Second
	DefaultCacheTTL        = 24 * time.Hour
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisPrefix     = "depot:"
)

// =============================================================================
// Types
// =============================================================================

// Config is the decoded depot.toml.
type Config struct {
	// Local is the local repository directory. A leading "~" is expanded.
	Local   string `toml:"local"`
	Offline bool   `toml:"offline"`

	Transfer     Transfer            `toml:"transfer"`
	Collect      Collect             `toml:"collect"`
	Scopes       Scopes              `toml:"scopes"`
	Cache        Cache               `toml:"cache"`
	Repositories []Repository        `toml:"repository"`
	Mirrors      []repository.Mirror `toml:"mirror"`
}

// Transfer configures connectors.
type Transfer struct {
	Workers    int      `toml:"workers"`
	Retries    int      `toml:"retries"`
	RetryDelay Duration `toml:"retry_delay"`
	// Checksum and Update override every repository's policy when set.
	Checksum string `toml:"checksum"`
	Update   string `toml:"update"`
}

// Collect configures graph collection and conflict resolution.
type Collect struct {
	Workers         int      `toml:"workers"`
	MaxDepth        int      `toml:"max_depth"`
	MaxRelocations  int      `toml:"max_relocations"`
	MaxNodes        int      `toml:"max_nodes"`
	FailFast        bool     `toml:"fail_fast"`
	ManageDirect    bool     `toml:"manage_direct"`
	IncludeOptional bool     `toml:"include_optional"`
	DropTransitive  []string `toml:"drop_transitive"`
	// Strict fails a resolution on collection errors even when every
	// winning artifact resolved.
	Strict bool `toml:"strict"`
}

// Scopes configures the scope widening table.
type Scopes struct {
	// Order lists scopes from widest to narrowest.
	Order []string `toml:"order"`
}

// Cache configures the descriptor and version cache.
type Cache struct {
	Backend string `toml:"backend"`
	// Dir is the file cache directory. Defaults to [CacheDir].
	Dir           string   `toml:"dir"`
	TTL           Duration `toml:"ttl"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	RedisPrefix   string   `toml:"redis_prefix"`
}

// Repository is one [[repository]] entry. Releases and snapshots default to
// enabled; Checksum and Update apply to both.
type Repository struct {
	ID          string `toml:"id"`
	URL         string `toml:"url"`
	ContentType string `toml:"content_type"`
	Releases    *bool  `toml:"releases"`
	Snapshots   *bool  `toml:"snapshots"`
	Checksum    string `toml:"checksum"`
	Update      string `toml:"update"`
}

// Remote converts the entry into a repository.
func (r Repository) Remote() repository.RemoteRepository {
	repo := repository.NewRemote(r.ID, r.URL)
	if r.ContentType != "" {
		repo.ContentType = r.ContentType
	}
	apply := func(p *repository.Policy, enabled *bool) {
		if enabled != nil {
			p.Enabled = *enabled
		}
		if r.Checksum != "" {
			p.ChecksumPolicy = r.Checksum
		}
		if r.Update != "" {
			p.UpdatePolicy = r.Update
		}
	}
	apply(&repo.Releases, r.Releases)
	apply(&repo.Snapshots, r.Snapshots)
	return repo
}

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText writes the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// =============================================================================
// Loading
// =============================================================================

// Default returns a configuration with every default applied.
func Default() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Local == "" {
		c.Local = DefaultLocal()
	}
	c.Local = expandHome(c.Local)
	if c.Transfer.Workers <= 0 {
		c.Transfer.Workers = DefaultTransferWorkers
	}
	if c.Transfer.Retries <= 0 {
		c.Transfer.Retries = DefaultRetries
	}
	if c.Transfer.RetryDelay.Duration <= 0 {
		c.Transfer.RetryDelay.Duration = DefaultRetryDelay
	}
	if len(c.Scopes.Order) == 0 {
		for _, s := range artifact.DefaultScopeOrder {
			c.Scopes.Order = append(c.Scopes.Order, string(s))
		}
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheFile
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = CacheDir()
	}
	c.Cache.Dir = expandHome(c.Cache.Dir)
	if c.Cache.TTL.Duration <= 0 {
		c.Cache.TTL.Duration = DefaultCacheTTL
	}
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = DefaultRedisAddr
	}
	if c.Cache.RedisPrefix == "" {
		c.Cache.RedisPrefix = DefaultRedisPrefix
	}
	if len(c.Repositories) == 0 {
		c.Repositories = []Repository{{ID: "central", URL: DefaultCentralURL}}
	}
	return c
}

// Parse decodes TOML data, applies defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var c Config
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&c)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads the file at path. An empty path looks the file up with
// [Path]; if that file does not exist the defaults are returned. An explicit
// path must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return Default(), nil
	}
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "config %s", path)
	}
	return c, nil
}

// Validate checks repositories, mirrors, the scope order and the cache
// backend.
func (c Config) Validate() error {
	seen := map[string]bool{}
	for _, r := range c.Repositories {
		if err := r.Remote().Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return errors.New(errors.ErrCodeInvalidConfig, "repository %q defined twice", r.ID)
		}
		seen[r.ID] = true
	}
	for _, m := range c.Mirrors {
		if m.ID == "" || m.MirrorOf == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "mirror needs id and mirror_of (url %q)", m.URL)
		}
		if err := errors.ValidateURL(m.URL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "mirror %s", m.ID)
		}
	}
	if _, err := c.ScopeTable(); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case CacheFile, CacheRedis, CacheNone:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	if c.Transfer.Checksum != "" || c.Transfer.Update != "" {
		p := repository.Policy{ChecksumPolicy: c.Transfer.Checksum, UpdatePolicy: c.Transfer.Update}
		if err := p.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "transfer")
		}
	}
	return nil
}

// =============================================================================
// Paths
// =============================================================================

// Path returns the config file location: $DEPOT_CONFIG if set, else
// depot.toml under the XDG config directory.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, FileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(home, ".config", appName, FileName)
}

// CacheDir returns the cache directory using the XDG standard
// (~/.cache/depot/).
func CacheDir() string {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, ".cache", appName)
}

// DefaultLocal returns ~/.m2/repository.
func DefaultLocal() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "repository")
	}
	return filepath.Join(home, ".m2", "repository")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
