// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package config

import (
	"os"
	"path/filepath"
)

const appName = "qread"

// Dir returns the XDG config directory for qread. It checks
// XDG_CONFIG_HOME first and falls back to ~/.config.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultPath is the config file read when --config is not given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// ResolvePath returns explicit when set, otherwise DefaultPath if that
// file exists, otherwise "" to run on defaults alone.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path := DefaultPath()
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
