package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/EasterCompany/dex-sylvr-service/config"
	"github.com/spf13/cobra"
)

// ANSI color codes for formatted output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

// Represents the expected structure of a config file for validation.
type ConfigSchema struct {
	FileName string
	Path     string
	Model    any
}

var configDir string

var rootCmd = &cobra.Command{
	Use:   "verify-config",
	Short: "Check dex-sylvr-service config files for unknown or empty fields",
	Run: func(cmd *cobra.Command, args []string) {
		verifyAll()
	},
}

func main() {
	rootCmd.Flags().StringVar(&configDir, "config-dir", "", "config directory (default $DEX_CONFIG_DIR or ~/Dexter/config)")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func verifyAll() {
	fmt.Printf("%s--- Dexter Config Verifier ---%s\n", ColorBlue, ColorReset)

	dir, err := config.ResolveDir(configDir)
	if err != nil {
		fmt.Printf("%s[FATAL]%s Could not resolve config directory: %v\n", ColorRed, ColorReset, err)
		os.Exit(1)
	}

	schemas := []ConfigSchema{
		{FileName: config.ServiceFile, Path: filepath.Join(dir, config.ServiceFile), Model: config.ServiceConfig{}},
		{FileName: config.LLMFile, Path: filepath.Join(dir, config.LLMFile), Model: config.LLMConfig{}},
		{FileName: config.MongoFile, Path: filepath.Join(dir, config.MongoFile), Model: config.MongoConfig{}},
		{FileName: config.CacheFile, Path: filepath.Join(dir, config.CacheFile), Model: config.CacheConfig{}},
	}

	allChecksPassed := true
	for _, schema := range schemas {
		fmt.Printf("\nVerifying %s'%s'%s...\n", ColorBlue, schema.FileName, ColorReset)
		ok := verifyConfigFile(schema)
		if !ok {
			allChecksPassed = false
		}
	}

	fmt.Println("\n--------------------------")
	if allChecksPassed {
		fmt.Printf("%s✅ All configuration files seem correct.%s\n", ColorGreen, ColorReset)
	} else {
		fmt.Printf("%s❌ Some issues were found in the configuration.%s\n", ColorRed, ColorReset)
		os.Exit(1)
	}
}

func verifyConfigFile(schema ConfigSchema) bool {
	// 1. Check file existence
	content, err := os.ReadFile(schema.Path)
	if err != nil {
		fmt.Printf("  %s[FAIL]%s File not found or not readable: %v\n", ColorRed, ColorReset, err)
		return false
	}
	fmt.Printf("  %s[OK]%s File exists and is readable.\n", ColorGreen, ColorReset)

	// 2. Check for valid JSON and unknown fields
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()

	modelType := reflect.TypeOf(schema.Model)
	modelInstance := reflect.New(modelType).Interface()

	if err := decoder.Decode(modelInstance); err != nil {
		fmt.Printf("  %s[FAIL]%s JSON is invalid or contains unexpected fields: %v\n", ColorRed, ColorReset, err)
		return false
	}
	fmt.Printf("  %s[OK]%s JSON is valid and all fields are recognized.\n", ColorGreen, ColorReset)

	// 3. Check for fields left at their zero value
	val := reflect.ValueOf(modelInstance).Elem()
	typ := val.Type()
	missingFields := []string{}
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if field.IsZero() {
			missingFields = append(missingFields, typ.Field(i).Name)
		}
	}

	if len(missingFields) > 0 {
		fmt.Printf("  %s[WARN]%s The following fields are present but have empty/default values: %v\n", ColorYellow, ColorReset, missingFields)
	} else {
		fmt.Printf("  %s[OK]%s All required fields have non-empty values.\n", ColorGreen, ColorReset)
	}

	return true
}
