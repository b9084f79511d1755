// Package utils holds small helpers shared by the command-line tools.
package utils

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GetSchemaFromConfig reflects a JSON schema from any tagged struct and
// returns it as a compact JSON string.
func GetSchemaFromConfig(config any) (string, error) {
	schema := jsonschema.Reflect(config)

	jsonSchemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	return string(jsonSchemaBytes), nil
}
