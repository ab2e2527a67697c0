package protocol

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	out := map[string]*jsonschema.Schema{}
	for typ, name := range map[string]string{TypeHello: "hello.schema.json", TypeCmd: "cmd.schema.json"} {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		s, err := jsonschema.CompileString(name, string(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		out[typ] = s
	}
	return out, nil
})

// Validate checks an inbound client message against the schema for its type.
// Types without a schema pass.
func Validate(typ string, raw []byte) error {
	all, err := schemas()
	if err != nil {
		return err
	}
	s, ok := all[typ]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
