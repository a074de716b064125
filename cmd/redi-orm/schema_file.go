package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
)

// fieldFile is the JSON-file shape of one field declaration, a flat
// subset of schema.FieldSpec good enough for CLI-driven schema
// preparation (no custom types or relations).
type fieldFile struct {
	Kind     string `json:"kind"`
	Nullable bool   `json:"nullable"`
}

type modelFile struct {
	Fields        map[string]fieldFile `json:"fields"`
	Primary       []string             `json:"primary"`
	AutoIncrement bool                 `json:"autoIncrement"`
}

type schemaFile struct {
	Models map[string]modelFile `json:"models"`
}

// loadSchemaFile reads path's JSON schema description and registers
// each model against reg.
func loadSchemaFile(reg *schema.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}
	var sf schemaFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parsing schema file: %w", err)
	}
	for name, model := range sf.Models {
		fields := make(map[string]schema.FieldSpec, len(model.Fields))
		for fname, f := range model.Fields {
			kind, err := parseKind(f.Kind)
			if err != nil {
				return fmt.Errorf("model %q field %q: %w", name, fname, err)
			}
			fields[fname] = schema.FieldSpec{Kind: kind, Nullable: f.Nullable}
		}
		config := schema.ModelConfig{Primary: model.Primary, AutoIncrement: model.AutoIncrement}
		if err := reg.Extend(name, fields, config); err != nil {
			return fmt.Errorf("registering model %q: %w", name, err)
		}
	}
	return nil
}

func parseKind(s string) (types.Kind, error) {
	switch types.Kind(s) {
	case types.KindInteger, types.KindUnsigned, types.KindBigint, types.KindFloat, types.KindDouble,
		types.KindDecimal, types.KindChar, types.KindString, types.KindText, types.KindBoolean,
		types.KindTimestamp, types.KindDate, types.KindTime, types.KindBinary, types.KindList,
		types.KindJSON, types.KindArray, types.KindObject:
		return types.Kind(s), nil
	default:
		return "", fmt.Errorf("unknown field kind %q", s)
	}
}
