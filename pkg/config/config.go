// Package config loads sbomkit configuration from a YAML file, an optional
// .env file and the environment.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// Environment overrides.
const (
	EnvDatabaseDriver  = "SBOMKIT_DATABASE_DRIVER"
	EnvDatabaseDSN     = "SBOMKIT_DATABASE_DSN"
	EnvNamespacePrefix = "SBOMKIT_NAMESPACE_PREFIX"
	EnvLogLevel        = "SBOMKIT_LOG_LEVEL"
	EnvS3AccessKey     = "SBOMKIT_S3_ACCESS_KEY"
	EnvS3SecretKey     = "SBOMKIT_S3_SECRET_KEY"
)

// Config is the full sbomkit configuration.
type Config struct {
	Database Database `yaml:"database"`

	// NamespacePrefix starts every new document namespace URI.
	NamespacePrefix string `yaml:"namespace_prefix"`

	// DefaultScanners run when no scanner is named on the command line.
	DefaultScanners []string `yaml:"default_scanners"`

	Scanners map[string]ScannerConfig `yaml:"scanners"`

	// Workers bounds concurrent per-file provider invocations.
	Workers int `yaml:"workers"`

	// ProviderRate limits provider invocations per second; 0 is unlimited.
	ProviderRate float64 `yaml:"provider_rate"`

	LicenseList LicenseList `yaml:"license_list"`

	// Creator is the default document creator, e.g. "Tool: sbomkit".
	Creator string `yaml:"creator"`

	LogLevel string `yaml:"log_level"`

	// MetricsTextfile, when set, receives a Prometheus textfile export
	// after each command.
	MetricsTextfile string `yaml:"metrics_textfile"`

	Publish Publish `yaml:"publish"`
	Signing Signing `yaml:"signing"`
}

// Database selects the entity store backend.
type Database struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// ScannerConfig configures one capability provider.
type ScannerConfig struct {
	// Path is the provider binary.
	Path string `yaml:"path"`

	// Args is a shell-style argument string; {target} is replaced by the
	// scanned path.
	Args string `yaml:"args"`

	// Ignore holds glob patterns matched against package-relative paths.
	Ignore []string `yaml:"ignore"`

	Timeout time.Duration `yaml:"timeout"`
}

// SplitArgs splits Args the way a POSIX shell would.
func (s ScannerConfig) SplitArgs() ([]string, error) {
	if strings.TrimSpace(s.Args) == "" {
		return nil, nil
	}
	args, err := shlex.Split(s.Args)
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, "config.SplitArgs", err)
	}
	return args, nil
}

// LicenseList locates the SPDX license list imported by dbinit.
type LicenseList struct {
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

// Publish configures where rendered documents are copied.
type Publish struct {
	Dir string `yaml:"dir"`
	S3  S3     `yaml:"s3"`
}

// S3 configures an S3-compatible sink.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether an S3 sink is configured.
func (s S3) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// Signing configures detached OpenPGP signatures of rendered documents.
type Signing struct {
	KeyFile       string `yaml:"key_file"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

// DefaultLicenseListURL is the published SPDX license list.
const DefaultLicenseListURL = "https://raw.githubusercontent.com/spdx/license-list-data/main/json/licenses.json"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dbPath := DefaultDatabasePath()
	return &Config{
		Database: Database{
			Driver:       "sqlite",
			DSN:          dbPath,
			MaxOpenConns: 8,
			BusyTimeout:  5 * time.Second,
		},
		NamespacePrefix: "sqlite://" + dbPath,
		DefaultScanners: []string{"nomos"},
		Scanners: map[string]ScannerConfig{
			"nomos": {
				Path:    "/usr/local/share/fossology/nomos/agent/nomossa",
				Timeout: 10 * time.Minute,
			},
			"nomos_deep": {
				Path:    "/usr/local/share/fossology/nomos/agent/nomossa",
				Timeout: 10 * time.Minute,
			},
			"trivy": {
				Path:    "trivy",
				Timeout: 30 * time.Minute,
			},
		},
		Workers:     4,
		LicenseList: LicenseList{URL: DefaultLicenseListURL},
		Creator:     "Tool: sbomkit",
		LogLevel:    "info",
	}
}

// DefaultPath returns ~/.config/sbomkit/sbomkit.yaml, honouring
// XDG_CONFIG_HOME.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sbomkit", "sbomkit.yaml")
}

// DefaultDatabasePath returns ~/.sbomkit/sbomkit.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sbomkit", "sbomkit.db")
}

// Load reads the configuration at path. A missing file yields the defaults.
// A .env file in the working directory is loaded first; variables already
// set in the environment win. ${VAR} references in the YAML are expanded.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	_ = godotenv.Load()

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errors.E(errors.KindInvalidInput, op, "parse "+path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.E(errors.KindInvalidInput, op, "read "+path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabaseDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvNamespacePrefix); v != "" {
		c.NamespacePrefix = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvS3AccessKey); v != "" {
		c.Publish.S3.AccessKey = v
	}
	if v := os.Getenv(EnvS3SecretKey); v != "" {
		c.Publish.S3.SecretKey = v
	}
}

// Validate fills defaults and rejects invalid values.
func (c *Config) Validate() error {
	const op = "config.Validate"
	switch c.Database.Driver {
	case "":
		c.Database.Driver = "sqlite"
	case "sqlite", "pgx":
	default:
		return errors.E(errors.KindInvalidInput, op, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		if c.Database.Driver != "sqlite" {
			return errors.E(errors.KindInvalidInput, op, "database dsn is required for driver "+c.Database.Driver)
		}
		c.Database.DSN = DefaultDatabasePath()
	}
	if c.Workers < 0 {
		return errors.E(errors.KindInvalidInput, op, fmt.Sprintf("workers must not be negative, got %d", c.Workers))
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.ProviderRate < 0 {
		return errors.E(errors.KindInvalidInput, op, "provider_rate must not be negative")
	}
	if c.NamespacePrefix == "" {
		return errors.E(errors.KindInvalidInput, op, "namespace_prefix is required")
	}
	c.NamespacePrefix = strings.TrimRight(c.NamespacePrefix, "/")
	for name, sc := range c.Scanners {
		if _, err := sc.SplitArgs(); err != nil {
			return errors.E(errors.KindInvalidInput, op, "scanner "+name, err)
		}
	}
	if c.Creator == "" {
		c.Creator = "Tool: sbomkit"
	}
	return nil
}

// Scanner returns the configuration of the named provider.
func (c *Config) Scanner(name string) ScannerConfig {
	return c.Scanners[name]
}

// WriteDefault writes the default configuration as commented YAML.
func WriteDefault(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("# sbomkit configuration file\n")
	buf.WriteString("# database.driver is sqlite or pgx; namespace_prefix starts every new document namespace.\n")
	buf.WriteString("# scanners.<name>.ignore holds glob patterns matched against package-relative paths.\n\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(DefaultConfig()); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Dump writes the effective configuration as sorted "key = value" lines.
func (c *Config) Dump(w io.Writer) error {
	lines := []string{
		"database.driver = " + c.Database.Driver,
		"database.dsn = " + c.Database.DSN,
		"namespace_prefix = " + c.NamespacePrefix,
		"default_scanners = " + strings.Join(c.DefaultScanners, ","),
		fmt.Sprintf("workers = %d", c.Workers),
		fmt.Sprintf("provider_rate = %g", c.ProviderRate),
		"creator = " + c.Creator,
		"log_level = " + c.LogLevel,
	}
	for name, sc := range c.Scanners {
		lines = append(lines, "scanners."+name+".path = "+sc.Path)
		if sc.Args != "" {
			lines = append(lines, "scanners."+name+".args = "+sc.Args)
		}
		if len(sc.Ignore) > 0 {
			lines = append(lines, "scanners."+name+".ignore = "+strings.Join(sc.Ignore, ","))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
