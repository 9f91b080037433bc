// Package appid holds the static identity of the ballotbox binary: the names
// used for the CLI, configuration lookup, environment variables and telemetry.
package appid

import (
	"context"
	"strings"
)

// Identity describes how the application presents itself.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
	Vendor      string
}

var current = Identity{
	BinaryName:  "ballotbox",
	ConfigName:  "ballotbox",
	EnvPrefix:   "BALLOTBOX_",
	Description: "Versioned voting API with per-client rate limiting",
	Vendor:      "ballotbox",
}

// Get returns the application identity.
func Get(_ context.Context) (*Identity, error) {
	identity := current
	return &identity, nil
}

// ViperEnvPrefix returns the prefix in the form viper.SetEnvPrefix expects
// (viper appends the underscore itself).
func (i *Identity) ViperEnvPrefix() string {
	return strings.TrimSuffix(i.EnvPrefix, "_")
}

// TelemetryNamespace is the metric namespace used by the Prometheus exporter.
func (i *Identity) TelemetryNamespace() string {
	if i == nil || i.BinaryName == "" {
		return "app"
	}
	return strings.ReplaceAll(strings.ToLower(i.BinaryName), "-", "_")
}
