// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfg decodes fruina's ambient configuration (shared-FS root,
// transport socket, GC interval, tiered-peer capacity, logging) the way
// gcsfuse's cfg package decodes its mount configuration: through viper,
// with a mapstructure decode hook for the validated leaf types. There is
// deliberately no flag-parsing entry point here (spec §1: no CLI) —
// embedders build a Config directly or decode one from their own source.
package cfg

import (
	"time"

	"github.com/spf13/viper"
)

// Config is fruina's ambient configuration. Every peer/transport
// constructor takes the slice of it that's relevant, rather than the whole
// struct, but Config is how it is typically decoded and threaded through.
type Config struct {
	SharedFS SharedFSConfig `mapstructure:"shared-fs"`

	Transport TransportConfig `mapstructure:"transport"`

	Tiered TieredConfig `mapstructure:"tiered"`

	Logging LoggingConfig `mapstructure:"logging"`
}

type SharedFSConfig struct {
	// Root is the shared directory under which leases/ and data/ live.
	Root string `mapstructure:"root"`

	// GCInterval is how often the maintenance loop scans for expired files.
	GCInterval time.Duration `mapstructure:"gc-interval"`
}

type TransportConfig struct {
	// SocketPath is the local-socket path the transport server listens on.
	SocketPath string `mapstructure:"socket-path"`
}

type TieredConfig struct {
	// HotMaxItems bounds the number of objects kept in the hot tier.
	HotMaxItems int `mapstructure:"hot-max-items"`
}

type LoggingConfig struct {
	Severity LogSeverity `mapstructure:"severity"`
	Format   LogFormat   `mapstructure:"format"`
	FilePath string      `mapstructure:"file-path"`
}

// Defaults returns a Config with fruina's built-in defaults, the way
// gcsfuse's cfg/defaults.go seeds its flag defaults.
func Defaults() Config {
	return Config{
		SharedFS: SharedFSConfig{
			GCInterval: 30 * time.Second,
		},
		Tiered: TieredConfig{
			HotMaxItems: 64,
		},
		Logging: LoggingConfig{
			Severity: "INFO",
			Format:   "text",
		},
	}
}

// Load decodes a Config from v, applying DecodeHook and filling in
// Defaults() for anything v leaves unset.
func Load(v *viper.Viper) (Config, error) {
	c := Defaults()
	if err := v.Unmarshal(&c, viper.DecodeHook(DecodeHook())); err != nil {
		return Config{}, err
	}
	return c, nil
}
