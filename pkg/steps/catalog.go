// Package steps provides the built-in step types.
package steps

import (
	"slices"
	"strings"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
)

// Builtin describes one built-in step type.
type Builtin struct {
	Name        string
	Description string
	New         registry.Constructor
}

func noParams(step pipeline.Step) registry.Constructor {
	return func(params map[string]any) (pipeline.Step, error) {
		if err := registry.Decode(params, &struct{}{}); err != nil {
			return nil, err
		}
		return step, nil
	}
}

var builtins = []Builtin{
	{"read_file", "Read a file and return its contents", newReadFile},
	{"write_file", "Write data to a file", newWriteFile},
	{"copy_file", "Copy a file to a new location", newTransfer(false)},
	{"move_file", "Move or rename a file", newTransfer(true)},
	{"delete_file", "Delete a file", newDeleteFile},
	{"list_files", "List files in a directory matching a glob pattern", newListFiles},

	{"http_get", "Make an HTTP GET request", newHTTPGet},
	{"http_post", "Make an HTTP POST request with a JSON body", newHTTPPost},
	{"download_file", "Download a URL to a file", newDownload},
	{"webhook", "Send a JSON payload to a webhook URL", newWebhook},

	{"grep", "Keep lines matching a regular expression", newGrep},
	{"replace", "Replace text matching a regular expression", newReplace},
	{"split_lines", "Split text into lines", newSplitLines},
	{"join_lines", "Join lines into a single string", newJoinLines},
	{"template", "Render a Go template with the input and context", newTemplate},
	{"render_files", "Render files in place as templates over the context", newRenderFiles},
	{"to_uppercase", "Convert text to uppercase", newCase(strings.ToUpper)},
	{"to_lowercase", "Convert text to lowercase", newCase(strings.ToLower)},

	{"parse_json", "Parse JSON text", noParams(parseJSONStep{})},
	{"to_json", "Encode data as JSON", newToJSON},
	{"parse_yaml", "Parse YAML text", noParams(parseYAMLStep{})},
	{"to_yaml", "Encode data as YAML", newToYAML},
	{"parse_csv", "Parse CSV text into rows", newParseCSV},
	{"to_csv", "Encode a list of mappings as CSV", newToCSV},
	{"filter_data", "Keep list items matching a condition or expression", newFilter},
	{"parse_rss", "Parse an RSS or Atom feed into entries", newParseRSS},
	{"format_entries_markdown", "Format feed entries as a markdown list", newMarkdown},
	{"jq", "Transform data with a jq expression", newJQ},
}

// Builtins returns the built-in step types in catalogue order.
func Builtins() []Builtin {
	return slices.Clone(builtins)
}

// RegisterBuiltins registers every built-in step type with reg, replacing
// any constructor already registered under the same name.
func RegisterBuiltins(reg *registry.Registry) {
	for _, b := range builtins {
		reg.Register(b.Name, b.New)
	}
}

// Describe returns the one-line description of a built-in, or "" for
// types that are not built in.
func Describe(name string) string {
	for _, b := range builtins {
		if b.Name == name {
			return b.Description
		}
	}
	return ""
}
