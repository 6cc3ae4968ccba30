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

package prompt

// ArgType represents the declared type of a tool argument, following
// JSON Schema type names as they appear in tool input schemas.
type ArgType string

const (
	// ArgTypeString represents string arguments
	ArgTypeString ArgType = "string"

	// ArgTypeNumber represents numeric arguments
	ArgTypeNumber ArgType = "number"

	// ArgTypeInteger represents integer arguments
	ArgTypeInteger ArgType = "integer"

	// ArgTypeBoolean represents boolean arguments
	ArgTypeBoolean ArgType = "boolean"

	// ArgTypeArray represents array arguments
	ArgTypeArray ArgType = "array"

	// ArgTypeObject represents object arguments (JSON)
	ArgTypeObject ArgType = "object"
)

// MissingArg describes a required tool argument that was not provided
// on the command line and must be collected interactively.
type MissingArg struct {
	Name        string
	Type        ArgType
	Description string
	Options     []string // enum values when the schema declares them
}

// ValidationError represents an input validation failure.
type ValidationError struct {
	ArgName string
	ArgType string
	Reason  string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// MaxRetries is the maximum number of validation retry attempts per argument.
const MaxRetries = 3

// MaxInputSize is the maximum allowed input size in bytes.
const MaxInputSize = 65536
