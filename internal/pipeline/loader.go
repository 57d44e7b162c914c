package pipeline

import (
	"os"
	"strings"

	"flakeview/internal/common"
	"flakeview/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a pipeline definition:
//
//	views:
//	  - name: t1
//	    query: create or replace view t1 as select 1 as x
type File struct {
	Views Pipeline `yaml:"views"`
}

// Load reads a pipeline from a YAML file. The result is not validated.
func Load(path string) (Pipeline, error) {
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid pipeline path").
			WithContext("path", path)
	}

	data, err := os.ReadFile(cleaned) // #nosec G304 - path is validated
	if err != nil {
		code := errors.ErrCodeFileOperation
		if os.IsNotExist(err) {
			code = errors.ErrCodeFileNotFound
		}
		return nil, errors.Wrap(err, code, "Failed to read pipeline file").
			WithContext("path", cleaned)
	}

	return Parse(data)
}

// Parse decodes a pipeline definition.
func Parse(data []byte) (Pipeline, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidationFailed, "Failed to parse pipeline file").
			WithSuggestions("The file must contain a top-level 'views' list of {name, query} entries")
	}
	if len(file.Views) == 0 {
		return nil, errors.New(errors.ErrCodeValidationFailed, "Pipeline file defines no views")
	}
	return file.Views, nil
}

// Marshal encodes a pipeline in the format Load reads. Queries are trimmed so
// multi-line statements come out as plain literal blocks; leading blank lines
// would otherwise need an indentation indicator that the decoder rejects.
func Marshal(p Pipeline) ([]byte, error) {
	views := make(Pipeline, len(p))
	for i, v := range p {
		v.Query = strings.TrimSpace(v.Query)
		if strings.Contains(v.Query, "\n") {
			v.Query += "\n"
		}
		views[i] = v
	}
	return yaml.Marshal(File{Views: views})
}
