package descriptor

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DocumentFormat names a structured encoding of descriptor values.
type DocumentFormat string

// Supported document formats.
const (
	DocumentFormatJSON DocumentFormat = "json"
	DocumentFormatYAML DocumentFormat = "yaml"
	DocumentFormatTOML DocumentFormat = "toml"
)

const (
	unsupportedDocumentFormatTemplate = "unsupported document format %q"
	documentDecodeTemplate            = "unable to decode %s document: %v"
	emptyDocumentMessage              = "document is empty"
)

// DocumentFormatForPath selects the document format from a file extension. Unknown extensions read as YAML.
func DocumentFormatForPath(path string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DocumentFormatJSON
	case ".toml":
		return DocumentFormatTOML
	default:
		return DocumentFormatYAML
	}
}

// DecodeDocument reads a descriptor value encoded as JSON, YAML or TOML into the generic value
// tree accepted by Parse. TOML documents always decode to an object.
func DecodeDocument(data []byte, format DocumentFormat) (any, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ValidationError{Message: emptyDocumentMessage}
	}

	var value any
	var decodeError error
	switch format {
	case DocumentFormatJSON:
		decodeError = json.Unmarshal(data, &value)
	case DocumentFormatYAML:
		decodeError = yaml.Unmarshal(data, &value)
	case DocumentFormatTOML:
		decodeError = toml.Unmarshal(data, &value)
	default:
		return nil, fmt.Errorf(unsupportedDocumentFormatTemplate, format)
	}
	if decodeError != nil {
		return nil, ValidationError{Message: fmt.Sprintf(documentDecodeTemplate, format, decodeError)}
	}
	return value, nil
}
