// Package definition reads routine definitions from files. JSON follows the
// editor's wire format; YAML and HCL are hand-authoring formats.
package definition

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/xjson"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatFor picks a format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", domain.NewValidationError("unsupported definition file extension", domain.ErrInvalidInput,
			domain.WithDetail("path", path))
	}
}

func Load(path string) (domain.RoutineDefinition, error) {
	format, err := FormatFor(path)
	if err != nil {
		return domain.RoutineDefinition{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RoutineDefinition{}, domain.NewStorageError("read definition file", err,
			domain.WithDetail("path", path))
	}
	return Parse(data, format)
}

func Parse(data []byte, format Format) (domain.RoutineDefinition, error) {
	var (
		def domain.RoutineDefinition
		err error
	)
	switch format {
	case FormatJSON:
		err = xjson.Unmarshal(data, &def)
	case FormatYAML:
		def, err = parseYAML(data)
	case FormatHCL:
		def, err = parseHCL(data)
	default:
		return def, domain.NewValidationError("unsupported definition format "+string(format), domain.ErrInvalidInput)
	}
	if err != nil {
		if domain.IsDomainError(err) {
			return domain.RoutineDefinition{}, err
		}
		return domain.RoutineDefinition{}, domain.NewValidationError("parse "+string(format)+" definition", err)
	}
	return def, nil
}
