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

package cfg

import (
	"fmt"
	"slices"
	"strings"
)

// LogSeverity is a validated severity name, matching the logger package's
// accepted levels (TRACE/DEBUG/INFO/WARNING/ERROR/OFF).
type LogSeverity string

var validSeverities = []string{"TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF"}

func (s *LogSeverity) UnmarshalText(text []byte) error {
	v := strings.ToUpper(string(text))
	if !slices.Contains(validSeverities, v) {
		return fmt.Errorf("invalid log severity %q: must be one of %v", string(text), validSeverities)
	}
	*s = LogSeverity(v)
	return nil
}

func (s LogSeverity) MarshalText() ([]byte, error) {
	return []byte(string(s)), nil
}

// LogFormat is a validated output format: "text" or "json".
type LogFormat string

func (f *LogFormat) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	if v != "text" && v != "json" {
		return fmt.Errorf("invalid log format %q: must be text or json", string(text))
	}
	*f = LogFormat(v)
	return nil
}

func (f LogFormat) MarshalText() ([]byte, error) {
	return []byte(string(f)), nil
}
