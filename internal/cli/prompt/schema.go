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

import "fmt"

// FindMissingArgs inspects a tool input schema (a JSON Schema object) and
// returns the required properties absent from args, in the order the schema
// declares them. Schemas without a required list, and malformed schemas,
// yield no missing arguments: the server remains the authority on what it
// accepts.
func FindMissingArgs(schema map[string]interface{}, args map[string]interface{}) []MissingArg {
	required, ok := schema["required"].([]interface{})
	if !ok || len(required) == 0 {
		return nil
	}

	properties, _ := schema["properties"].(map[string]interface{})

	missing := make([]MissingArg, 0)
	for _, entry := range required {
		name, ok := entry.(string)
		if !ok || name == "" {
			continue
		}
		if _, provided := args[name]; provided {
			continue
		}

		arg := MissingArg{Name: name, Type: ArgTypeString}
		if prop, ok := properties[name].(map[string]interface{}); ok {
			if t, ok := prop["type"].(string); ok && t != "" {
				arg.Type = ArgType(t)
			}
			if desc, ok := prop["description"].(string); ok {
				arg.Description = desc
			}
			arg.Options = enumOptions(prop)
		}
		missing = append(missing, arg)
	}

	return missing
}

// enumOptions extracts enum values from a property schema as strings.
func enumOptions(prop map[string]interface{}) []string {
	raw, ok := prop["enum"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}

	options := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			options = append(options, s)
		} else {
			options = append(options, fmt.Sprintf("%v", v))
		}
	}
	return options
}
