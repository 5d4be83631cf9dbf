// Package document loads and stores the logical tree as a YAML file, so
// the CLI can treat a document on disk as the application side of a
// session. Values outside the logical model (sequences, null, nested
// non-string keys) are normalized or skipped with a diagnostic rather
// than failing the whole load.
package document

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	binderrors "github.com/conneroisu/treebind/internal/errors"
	"github.com/conneroisu/treebind/internal/logical"
	"github.com/conneroisu/treebind/internal/logging"
)

// Load reads a YAML document into a logical map.
func Load(path string, logger logging.Logger) (logical.Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, binderrors.NewDocumentError("reading "+path, err)
	}

	return Parse(raw, logger)
}

// Parse decodes YAML bytes into a logical map.
func Parse(raw []byte, logger logging.Logger) (logical.Map, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, binderrors.NewDocumentError("parsing document", err)
	}

	m := logical.Map{}
	for k, v := range doc {
		nv, ok := normalize(v)
		if !ok {
			logWarnSkip(logger, k, v)
			continue
		}
		m[k] = nv
	}
	return m, nil
}

// Store writes a logical map back to a YAML file.
func Store(path string, m logical.Map) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return binderrors.NewDocumentError("encoding document", err)
	}

	if err := os.WriteFile(path, raw, 0644); err != nil {
		return binderrors.NewDocumentError("writing "+path, err)
	}
	return nil
}

// normalize converts a decoded YAML value to the logical model. YAML
// decodes nested mappings as map[string]any in v3, but map[any]any still
// appears for some shapes; both are handled.
func normalize(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		m := logical.Map{}
		for k, child := range t {
			nc, ok := normalize(child)
			if !ok {
				continue
			}
			m[k] = nc
		}
		return m, true
	case map[any]any:
		m := logical.Map{}
		for k, child := range t {
			key, ok := k.(string)
			if !ok {
				continue
			}
			nc, ok := normalize(child)
			if !ok {
				continue
			}
			m[key] = nc
		}
		return m, true
	default:
		if logical.KindOf(v) != logical.KindInvalid {
			return logical.Normalize(v), true
		}
		return nil, false
	}
}

func logWarnSkip(logger logging.Logger, key string, v any) {
	if logger == nil {
		return
	}
	logger.Warn(context.Background(),
		binderrors.NewUnsupportedKindError(key, v),
		fmt.Sprintf("skipping document value of type %T", v))
}
