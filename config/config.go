// Package config resolves the side-car descriptor naming the model a component loads.
package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/wippyai/wasm-fmu/errors"
)

// DescriptorName is the file the resolver looks for in the resource directory.
const DescriptorName = "slave_configuration.json"

const descriptorSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "slave configuration",
  "type": "object",
  "required": ["main_script", "main_class"],
  "properties": {
    "main_script": {"type": "string", "minLength": 1},
    "main_class": {"type": "string", "minLength": 1}
  }
}`

var (
	validate = validator.New()

	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// Configuration names the model a component instance loads. Immutable once resolved.
type Configuration struct {
	// EntryModule is the importable module identifier derived from the script name.
	EntryModule string
	// EntryClass is the class prefix of the model's exports.
	EntryClass string
	// ResourceDirectory is the native path of the component's resources.
	ResourceDirectory string
	// ScriptPath is the script location as named by the descriptor, made absolute.
	ScriptPath string
}

type descriptor struct {
	MainScript string `json:"main_script" validate:"required"`
	MainClass  string `json:"main_class" validate:"required"`
}

// DescriptorPath returns where Resolve looks for the descriptor.
func DescriptorPath(resourceDirectory string) string {
	return filepath.Join(resourceDirectory, DescriptorName)
}

// Resolve reads and validates the descriptor in resourceDirectory.
func Resolve(resourceDirectory string) (Configuration, error) {
	path := DescriptorPath(resourceDirectory)

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Configuration{}, errors.ConfigNotFound(path, err)
		}
		return Configuration{}, errors.ConfigMalformed(path, "cannot read descriptor", err)
	}

	d, err := parse(path, data)
	if err != nil {
		return Configuration{}, err
	}

	module, err := ModuleName(d.MainScript)
	if err != nil {
		return Configuration{}, errors.ConfigMalformed(path, err.Error(), nil)
	}

	script := filepath.FromSlash(strings.ReplaceAll(d.MainScript, `\`, "/"))
	if !filepath.IsAbs(script) {
		script = filepath.Join(resourceDirectory, script)
	}

	return Configuration{
		EntryModule:       module,
		EntryClass:        d.MainClass,
		ResourceDirectory: resourceDirectory,
		ScriptPath:        script,
	}, nil
}

func parse(path string, data []byte) (descriptor, error) {
	var d descriptor

	s, err := compiledSchema()
	if err != nil {
		return d, errors.Wrap(errors.PhaseConfig, errors.KindConfigMalformed, err, "descriptor schema")
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return d, errors.ConfigMalformed(path, "not valid JSON", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return d, errors.ConfigMalformed(path, strings.Join(details, "; "), nil)
	}

	if err := json.Unmarshal(data, &d); err != nil {
		return d, errors.ConfigMalformed(path, "not valid JSON", err)
	}
	if err := validate.Struct(&d); err != nil {
		return d, errors.ConfigMalformed(path, "missing required field", err)
	}
	return d, nil
}

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(descriptorSchema))
	})
	return schema, schemaErr
}

// ModuleName derives the importable module identifier from a script file name:
// directory and final extension are stripped. Both separators are accepted.
func ModuleName(script string) (string, error) {
	base := script
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		return "", fmt.Errorf("cannot derive a module name from script %q", script)
	}
	return base, nil
}
