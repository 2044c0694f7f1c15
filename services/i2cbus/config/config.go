// Package config loads bus configuration and the device-type registry from
// YAML.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"devicebus-go/services/i2cbus/internal/devtypes"
	"devicebus-go/types"
)

//go:embed registry.yaml
var defaultRegistryYAML []byte

// LoadError provides details about a configuration loading error.
type LoadError struct {
	// File is the path that failed to load ("" for in-memory data).
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	s := e.Message
	if e.File != "" {
		s = e.File + ": " + s
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *LoadError) Unwrap() error { return e.Cause }

// LoadBuses reads a bus configuration file.
func LoadBuses(path string) (types.BusesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.BusesConfig{}, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := ParseBuses(data)
	if le, ok := err.(*LoadError); ok {
		le.File = path
	}
	return cfg, err
}

// ParseBuses decodes bus configuration. Per-entry validation happens when
// the buses are built, so one bad entry does not reject the file.
func ParseBuses(data []byte) (types.BusesConfig, error) {
	var cfg types.BusesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return types.BusesConfig{}, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	for i, b := range cfg.Buses {
		if b.Name == "" {
			cfg.Buses[i].Name = fmt.Sprintf("I2C%d", i)
		}
	}
	return cfg, nil
}

// Registry is the parsed device-type registry.
type Registry = devtypes.Registry

// Descriptor is the registry entry of one device type as served to clients.
type Descriptor = devtypes.Descriptor

type registryFile struct {
	Types []devtypes.Entry `yaml:"types"`
}

// LoadRegistry reads a device registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	r, err := ParseRegistry(data)
	if le, ok := err.(*LoadError); ok {
		le.File = path
	}
	return r, err
}

// ParseRegistry decodes and validates a device registry.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if len(f.Types) == 0 {
		return nil, &LoadError{Message: "no device types"}
	}
	r, err := devtypes.New(f.Types)
	if err != nil {
		return nil, &LoadError{Message: "invalid device type", Cause: err}
	}
	return r, nil
}

// DefaultRegistry returns the built-in device registry.
func DefaultRegistry() *Registry {
	r, err := ParseRegistry(defaultRegistryYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in registry: %v", err))
	}
	return r
}
