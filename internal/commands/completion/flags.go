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

package completion

import (
	"github.com/spf13/cobra"
)

// CompleteOutputFormats provides completion for --format flag values.
func CompleteOutputFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		formats := []string{
			"text\tPlain text output",
			"json\tPretty-printed JSON",
			"markdown\tRendered markdown",
			"code:\tSyntax-highlighted code block, e.g. code:python",
		}
		return formats, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteTransportTypes provides completion for --type flag values.
func CompleteTransportTypes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		types := []string{
			"stdio\tLocal subprocess speaking JSON-RPC over pipes",
			"websocket\tRemote websocket endpoint",
			"sse\tRemote server-sent events endpoint",
			"streamable-http\tRemote streamable HTTP endpoint",
		}
		return types, cobra.ShellCompDirectiveNoFileComp
	})
}
