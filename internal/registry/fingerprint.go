// Copyright 2025 Tom Barlow
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

package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/tombee/ensemble/internal/config"
)

// Fingerprint returns a stable hex SHA-256 hash of a server configuration.
// json.Marshal emits struct fields in declaration order and sorts map keys,
// so equal configurations always produce the same hash.
func Fingerprint(cfg *config.ServerConfig) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		// ServerConfig holds only strings, ints, bools, slices, and
		// string maps; marshaling cannot fail.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
