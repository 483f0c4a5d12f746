package core

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jo-hoe/opticderm/internal/backend/commandstructure"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when neither a flag nor CONFIG_PATH names a file
const DefaultConfigPath = "config.yaml"

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Cache struct {
	Type    string        `yaml:"type"`
	Address string        `yaml:"address"`
	TTL     time.Duration `yaml:"ttl"`
}

type Placeholder struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type ServiceConfig struct {
	Port                int                              `yaml:"port"`
	LogLevel            string                           `yaml:"logLevel"`
	CatalogPath         string                           `yaml:"catalogPath"`
	Database            Database                         `yaml:"database"`
	Cache               Cache                            `yaml:"cache"`
	Placeholder         Placeholder                      `yaml:"placeholder"`
	ThumbnailWidth      int                              `yaml:"thumbnailWidth"`
	UploadMaxBytes      int64                            `yaml:"uploadMaxBytes"`
	UploadRatePerSecond float64                          `yaml:"uploadRatePerSecond"`
	Commands            []commandstructure.CommandConfig `yaml:"commands"`
}

// DefaultConfig is the configuration used for every omitted field
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:     8080,
		LogLevel: "info",
		Database: Database{
			Type:             "sqlite",
			ConnectionString: ":memory:",
		},
		Cache: Cache{
			Type: "memory",
			TTL:  10 * time.Minute,
		},
		Placeholder: Placeholder{
			Width:  640,
			Height: 480,
		},
		ThumbnailWidth:      160,
		UploadMaxBytes:      20 << 20,
		UploadRatePerSecond: 1,
		Commands: []commandstructure.CommandConfig{
			{Name: "PngConverterCommand", Params: map[string]any{"svgFallbackWidth": 640, "svgFallbackHeight": 480}},
			{Name: "ScaleCommand", Params: map[string]any{"width": 640, "height": 480}},
		},
	}
}

// LoadConfig loads configuration from the specified YAML file on top of DefaultConfig.
// A missing file at DefaultConfigPath yields the defaults; any other missing file is an error.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) && configPath == DefaultConfigPath {
		slog.Info("Config: no config file found, using defaults", "path", configPath)
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return config, nil
}

// Validate checks the configuration and reports every problem found. Call it again after
// overriding fields from flags or the environment.
func (c *ServiceConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.Placeholder.Width <= 0 || c.Placeholder.Height <= 0 {
		errs = append(errs, fmt.Errorf("placeholder size must be positive, got %dx%d", c.Placeholder.Width, c.Placeholder.Height))
	}
	if c.ThumbnailWidth <= 0 {
		errs = append(errs, fmt.Errorf("thumbnailWidth must be positive, got %d", c.ThumbnailWidth))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("uploadMaxBytes must be positive, got %d", c.UploadMaxBytes))
	}
	if c.UploadRatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("uploadRatePerSecond must not be negative, got %v", c.UploadRatePerSecond))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache ttl must not be negative, got %v", c.Cache.TTL))
	}
	if err := validateCommands(c.Commands); err != nil {
		errs = append(errs, fmt.Errorf("invalid command configuration: %w", err))
	}
	return errors.Join(errs...)
}

// validateCommands ensures every command names a registered command exactly once
func validateCommands(commands []commandstructure.CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("command at index %d: unknown command %q", i, cmd.Name)
		}
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}
