package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/lunarcap/marketdeck/internal/config"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/lunarcap/marketdeck/pkg/utils"
	"gopkg.in/yaml.v2"
)

func main() {
	// The sample carries the defaults so a copied file works unedited
	cfg := config.DefaultConfig()

	// Set the output paths
	schemaName := "marketdeck-client-config.json"
	schemaPath := filepath.Join("./config", schemaName)
	sampleConfigPath := filepath.Join("./config", "marketdeck-client-config.yaml")
	preferencesSchemaPath := filepath.Join("./config", "marketdeck-preferences.json")

	if err := validatePaths(schemaPath, sampleConfigPath); err != nil {
		log.Fatalf("Invalid output paths: %v", err)
	}
	if err := validateSchemaName(schemaName); err != nil {
		log.Fatalf("Invalid schema name: %v", err)
	}

	if err := generateSchemaFile(cfg, schemaPath); err != nil {
		log.Fatalf("Failed to generate schema: %v", err)
	}

	if err := generateSampleConfig(cfg, sampleConfigPath, schemaName); err != nil {
		log.Fatalf("Failed to generate sample config: %v", err)
	}

	if err := generatePreferencesSchema(preferencesSchemaPath); err != nil {
		log.Fatalf("Failed to generate preferences schema: %v", err)
	}

	log.Printf("Schema successfully generated at %s", schemaPath)
}

func validatePaths(schemaPath string, sampleConfigPath string) error {
	if schemaPath == "" {
		return fmt.Errorf("schema path cannot be empty")
	}
	if sampleConfigPath == "" {
		return fmt.Errorf("sample config path cannot be empty")
	}

	return nil
}

func validateSchemaName(schemaName string) error {
	if schemaName == "" {
		return fmt.Errorf("schema name cannot be empty")
	}
	if !strings.HasSuffix(schemaName, ".json") {
		return fmt.Errorf("schema name %q must have .json extension", schemaName)
	}

	return nil
}

// getSchemaReference returns the editor hint line that points a generated
// YAML file at its schema.
func getSchemaReference(schemaName string) string {
	return "# yaml-language-server: $schema=" + schemaName + "\n"
}

func generateSchemaFile(cfg config.ClientConfig, schemaPath string) error {
	schemaJSON, err := cfg.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema to file: %w", err)
	}

	return nil
}

// generatePreferencesSchema documents the set_preferences payload the
// client sends upstream.
func generatePreferencesSchema(path string) error {
	schemaJSON, err := utils.GetSchemaFromConfig(types.Preferences{})
	if err != nil {
		return fmt.Errorf("failed to generate preferences schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write preferences schema: %w", err)
	}

	return nil
}

// generateSampleConfig writes a schema-annotated sample config unless one
// already exists; an existing file is never overwritten.
func generateSampleConfig(cfg config.ClientConfig, sampleConfigPath string, schemaName string) error {
	if _, err := os.Stat(sampleConfigPath); err == nil {
		return nil
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config to yaml: %w", err)
	}
	yamlBytes = append([]byte(getSchemaReference(schemaName)), yamlBytes...)

	if err := os.MkdirAll(filepath.Dir(sampleConfigPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(sampleConfigPath, yamlBytes, 0644); err != nil {
		return fmt.Errorf("failed to write sample config to file: %w", err)
	}

	log.Printf("Sample config successfully generated at %s", sampleConfigPath)

	return nil
}
