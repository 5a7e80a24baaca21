// Package config provides XML-based configuration management for air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultConfigFile is the config file name next to the executable.
const DefaultConfigFile = "ABPoller.exe.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"ABPoller"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Controller connection configuration
	PLC PLCConfig `xml:"PLC"`

	// Monitoring configuration
	Monitor MonitorConfig `xml:"Monitor"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains knowledge store and scan output settings
type StorageConfig struct {
	DataDirectory  string `xml:"DataDirectory"`
	ScansDirectory string `xml:"ScansDirectory"`
	DatabaseFile   string `xml:"DatabaseFile"`
}

// PLCConfig contains controller connection settings
type PLCConfig struct {
	DefaultAddress     string `xml:"DefaultAddress"`
	DefaultSlot        int    `xml:"DefaultSlot"`
	SimulationMode     bool   `xml:"SimulationMode"`
	BrowsePerSecond    int    `xml:"BrowseRequestsPerSecond"`
	ConnectTimeoutSecs int    `xml:"ConnectTimeoutSeconds"`
}

// MonitorConfig contains change-detection polling settings
type MonitorConfig struct {
	PollIntervalMs   int `xml:"PollIntervalMs"`
	FailureThreshold int `xml:"FailureThreshold"`
	BackoffBaseMs    int `xml:"ReconnectBackoffBaseMs"`
	BackoffMaxMs     int `xml:"ReconnectBackoffMaxMs"`
	EventBuffer      int `xml:"EventBufferSize"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	DuckDBThreads           int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit       string `xml:"DuckDBMemoryLimit"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "32M",
		},
		Storage: StorageConfig{
			DataDirectory:  "./data",
			ScansDirectory: "./data/plc_scans",
			DatabaseFile:   "./data/knowledge.db",
		},
		PLC: PLCConfig{
			DefaultAddress:     "192.168.1.10",
			DefaultSlot:        0,
			SimulationMode:     false,
			BrowsePerSecond:    20,
			ConnectTimeoutSecs: 10,
		},
		Monitor: MonitorConfig{
			PollIntervalMs:   5000,
			FailureThreshold: 3,
			BackoffBaseMs:    1000,
			BackoffMaxMs:     60000,
			EventBuffer:      64,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			DuckDBThreads:           4,
			DuckDBMemoryLimit:       "512MB",
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default. The default still goes
	// through the same override and path resolution as a loaded file,
	// so first run and every later run see identical settings.
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- AB Tag Poller Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	// PLC_ADDRESS override for field laptops moving between lines
	if addr := os.Getenv("PLC_ADDRESS"); addr != "" {
		c.PLC.DefaultAddress = addr
	}

	// PLC_SIMULATION override
	if sim := os.Getenv("PLC_SIMULATION"); sim != "" {
		if v, err := strconv.ParseBool(sim); err == nil {
			c.PLC.SimulationMode = v
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.ScansDirectory) {
		c.Storage.ScansDirectory = filepath.Join(configDir, c.Storage.ScansDirectory)
	}
	if !filepath.IsAbs(c.Storage.DatabaseFile) {
		c.Storage.DatabaseFile = filepath.Join(configDir, c.Storage.DatabaseFile)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// PollInterval returns the monitor poll interval as a duration.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalMs) * time.Millisecond
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.ScansDirectory,
		filepath.Dir(c.Storage.DatabaseFile),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
