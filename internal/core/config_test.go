package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func TestLoadConfig_Success(t *testing.T) {
	configPath := writeConfig(t, `port: 9090
logLevel: debug
database:
  type: sqlite
  connectionString: "file:test.db"
cache:
  type: redis
  address: "localhost:6379"
  ttl: 2m
placeholder:
  width: 320
  height: 240
commands:
  - name: PngConverterCommand
  - name: ScaleCommand
    width: 320
    height: 240
`)

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Port != 9090 {
		t.Errorf("Expected port to be 9090, got %d", config.Port)
	}
	if config.LogLevel != "debug" {
		t.Errorf("Expected logLevel debug, got %s", config.LogLevel)
	}
	if config.Database.ConnectionString != "file:test.db" {
		t.Errorf("Expected connectionString 'file:test.db', got '%s'", config.Database.ConnectionString)
	}
	if config.Cache.Type != "redis" || config.Cache.TTL != 2*time.Minute {
		t.Errorf("Unexpected cache config %+v", config.Cache)
	}
	if config.Placeholder.Width != 320 || config.Placeholder.Height != 240 {
		t.Errorf("Unexpected placeholder size %+v", config.Placeholder)
	}
	if len(config.Commands) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(config.Commands))
	}
	if config.Commands[1].Params["width"] != 320 {
		t.Errorf("Expected inline width param 320, got %v", config.Commands[1].Params["width"])
	}
}

func TestLoadConfig_DefaultsForOmittedFields(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "port: 8081\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	defaults := DefaultConfig()

	if config.Database != defaults.Database {
		t.Errorf("Expected default database %+v, got %+v", defaults.Database, config.Database)
	}
	if config.ThumbnailWidth != defaults.ThumbnailWidth {
		t.Errorf("Expected default thumbnail width %d, got %d", defaults.ThumbnailWidth, config.ThumbnailWidth)
	}
	if len(config.Commands) != len(defaults.Commands) {
		t.Errorf("Expected default upload pipeline, got %v", config.Commands)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("/path/that/does/not/exist/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if config != nil {
		t.Error("Expected config to be nil when file doesn't exist")
	}
}

func TestLoadConfig_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	config, err := LoadConfig(DefaultConfigPath)
	if err != nil {
		t.Fatalf("Expected defaults, got error: %v", err)
	}
	if config.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", config.Port)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed yaml", "port: [", "failed to parse"},
		{"port out of range", "port: 70000", "port out of range"},
		{"bad placeholder", "placeholder:\n  width: 0\n  height: 10", "placeholder size"},
		{"negative ttl", "cache:\n  ttl: -1s", "cache ttl"},
		{"empty command name", "commands:\n  - width: 10", "empty name"},
		{"unknown command", "commands:\n  - name: SharpenCommand", "unknown command"},
		{"duplicate command", "commands:\n  - name: PngConverterCommand\n  - name: PngConverterCommand", "duplicate command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_AfterOverride(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	config.Port = 70000
	config.ThumbnailWidth = 0
	err := config.Validate()
	if err == nil {
		t.Fatal("expected error after overriding port")
	}
	for _, want := range []string{"port out of range: 70000", "thumbnailWidth"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
