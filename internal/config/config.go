// Package config loads the tool configuration from an optional YAML file,
// falling back to compiled-in defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultPath is the configuration file consulted when --config is not given.
const DefaultPath = "/etc/ovpatch.yaml"

// Config holds the tool configuration.
type Config struct {
	// StoragePrefix is the root directory for per-overlay storage
	// (upper/workdir/original subtrees).
	StoragePrefix string `yaml:"storage_prefix"`
	// DefaultDirs are the well-known installer directories covered by
	// "overlay create" without arguments.
	DefaultDirs []string `yaml:"default_dirs"`
	// ExpandDirs are directories that are themselves writable but whose
	// direct subdirectories are symlinks into read-only locations; the
	// subdirectories are added to the default set individually.
	ExpandDirs []string `yaml:"expand_dirs"`
	// IgnorePatterns are glob patterns for system paths the patch walk
	// never touches.
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		StoragePrefix: "/var/lib/ovpatch/overlayfs",
		DefaultDirs: []string{
			"/usr/lib/YaST2",
			"/usr/share/autoinstall",
			"/usr/share/applications/YaST2",
		},
		ExpandDirs: []string{
			"/usr/share/YaST2",
		},
		IgnorePatterns: []string{
			"/usr/share/doc/*",
			"/usr/share/man/*",
			"/usr/share/fillup-templates/*",
			"*.bak",
			"*.orig",
			"*.swp",
			"*~",
		},
	}
}

// Load reads the configuration from path. A missing file is not an error,
// the defaults apply; keys present in the file override the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %v", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %v", path, err)
	}

	if cfg.StoragePrefix == "" {
		cfg.StoragePrefix = Default().StoragePrefix
	}

	return cfg, nil
}
