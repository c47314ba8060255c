package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	flagutils "github.com/tyemirov/exres/internal/utils/flags"
)

const (
	yamlIndentWidthConstant   = 2
	jsonIndentConstant        = "  "
	unsupportedRenderTemplate = "unsupported output format %q"
	renderFailureTemplate     = "unable to render %s output: %w"
)

// renderDocument writes value to writer as YAML or JSON.
func renderDocument(writer io.Writer, outputFormat string, value any) error {
	switch outputFormat {
	case flagutils.OutputFormatJSON:
		encoded, encodeError := json.MarshalIndent(value, "", jsonIndentConstant)
		if encodeError != nil {
			return fmt.Errorf(renderFailureTemplate, outputFormat, encodeError)
		}
		_, writeError := fmt.Fprintln(writer, string(encoded))
		return writeError
	case flagutils.OutputFormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(yamlIndentWidthConstant)
		if encodeError := encoder.Encode(value); encodeError != nil {
			return fmt.Errorf(renderFailureTemplate, outputFormat, encodeError)
		}
		return encoder.Close()
	default:
		return fmt.Errorf(unsupportedRenderTemplate, outputFormat)
	}
}
