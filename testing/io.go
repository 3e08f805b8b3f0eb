// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright_testing

import (
	"encoding/json"
	"os"
)

// LoadFixture unmarshals a JSON fixture file into out.
func LoadFixture[P any](out *P, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// WriteFixture writes v as indented JSON, for regenerating expected
// outputs.
func WriteFixture(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
