package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/decimator/engine/assets/loaders"
	"github.com/spaghettifunk/decimator/engine/core"
	"github.com/spaghettifunk/decimator/engine/decimate"
)

// ApplicationConfig holds every option of a run. Precedence, lowest first:
// defaults, TOML file, environment, command-line flags.
type ApplicationConfig struct {
	// Root of the source tree.
	InputDir string `toml:"input_dir"`
	// Root of the mirrored destination tree.
	OutputDir string `toml:"output_dir"`
	// Fraction of triangles to keep, in (0, 1].
	DecimateRatio float64 `toml:"decimate_ratio"`
	// File suffixes treated as meshes, matched case-insensitively.
	Extensions []string `toml:"extensions"`
	// Decimation engine: quadric or planar.
	Engine string `toml:"engine"`
	// Output encoding: preserve, binary or ascii.
	OutputFormat string `toml:"output_format"`
	// Number of files simplified concurrently.
	Workers int `toml:"workers"`
	// Keep going after a file fails instead of aborting the batch.
	ContinueOnError bool `toml:"continue_on_error"`
	// Keep running after the batch and re-simplify changed files.
	Watch           bool   `toml:"watch"`
	WatchDebounceMS int    `toml:"watch_debounce_ms"`
	LogLevel        string `toml:"log_level"`

	Upload UploadConfig `toml:"upload"`
}

// UploadConfig mirrors every written output to an S3 compatible bucket.
type UploadConfig struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

func Default() *ApplicationConfig {
	return &ApplicationConfig{
		DecimateRatio:   0.3,
		Extensions:      []string{".stl"},
		Engine:          decimate.EngineQuadric,
		OutputFormat:    string(loaders.FormatPreserve),
		Workers:         1,
		ContinueOnError: true,
		WatchDebounceMS: 500,
		LogLevel:        "info",
		Upload: UploadConfig{
			Region: "us-east-1",
			UseSSL: true,
		},
	}
}

func (c *ApplicationConfig) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMS) * time.Millisecond
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none are
// given. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return core.Configurationf("load env file: %v", err)
	}
	return nil
}

// LoadFile decodes a TOML file on top of c. Unknown keys are rejected.
func (c *ApplicationConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Configurationf("read config %s: %v", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return core.Configurationf("config %s: %s", path, strict.String())
		}
		return core.Configurationf("config %s: %v", path, err)
	}
	return nil
}

// WriteFile stores c as TOML, e.g. to seed a config for later runs.
func (c *ApplicationConfig) WriteFile(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var logLevels = []string{"debug", "info", "warn", "error", "fatal"}

// Validate reports the first invalid option as a configuration error.
func (c *ApplicationConfig) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return core.Configurationf("input_dir is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return core.Configurationf("output_dir is required")
	}
	if err := decimate.ValidateRatio(c.DecimateRatio); err != nil {
		return err
	}
	if c.Workers < 1 {
		return core.Configurationf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := decimate.New(c.Engine); err != nil {
		return err
	}
	if _, err := loaders.ParseOutputFormat(c.OutputFormat); err != nil {
		return core.Configurationf("output_format: %v", err)
	}
	if c.WatchDebounceMS < 0 {
		return core.Configurationf("watch_debounce_ms must not be negative")
	}
	if !contains(logLevels, strings.ToLower(c.LogLevel)) {
		return core.Configurationf("log_level %q must be one of %s", c.LogLevel, strings.Join(logLevels, ", "))
	}
	if c.Upload.Enabled {
		if err := c.Upload.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (u UploadConfig) Validate() error {
	switch {
	case strings.TrimSpace(u.Endpoint) == "":
		return core.Configurationf("upload.endpoint is required")
	case strings.TrimSpace(u.AccessKey) == "" || strings.TrimSpace(u.SecretKey) == "":
		return core.Configurationf("upload.access_key and upload.secret_key are required")
	case strings.TrimSpace(u.Bucket) == "":
		return core.Configurationf("upload.bucket is required")
	}
	return nil
}

func (c *ApplicationConfig) String() string {
	return fmt.Sprintf("input=%s output=%s ratio=%g engine=%s format=%s workers=%d watch=%t",
		c.InputDir, c.OutputDir, c.DecimateRatio, c.Engine, c.OutputFormat, c.Workers, c.Watch)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
