package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jihoonkim/legisub/internal/config"
	"github.com/jihoonkim/legisub/pkg/bytesize"
	"github.com/jihoonkim/legisub/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing legisub configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  legisub config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .legisub.yaml, /etc/legisub/config.yaml)
  - Environment variables (LEGISUB_SERVER_PORT, LEGISUB_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the LEGISUB_ prefix and underscores for nesting.
Example: server.port -> LEGISUB_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Get mapstructure tag, then yaml tag, or fall back to the field name
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		// Handle different types
		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case bytesize.Size:
			result[key] = bytesize.Format(v)
		default:
			switch field.Kind() {
			case reflect.Struct:
				result[key] = toMap(field.Interface())
			case reflect.Slice:
				if field.Len() > 0 && field.Index(0).Kind() == reflect.Struct {
					items := make([]map[string]any, 0, field.Len())
					for i := 0; i < field.Len(); i++ {
						items = append(items, toMap(field.Index(i).Interface()))
					}
					result[key] = items
				} else {
					result[key] = field.Interface()
				}
			default:
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Load config without an explicit file: defaults, plus any config.yaml
	// found on the search path and any LEGISUB_ environment overrides
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Convert to map with human-readable values
	cfgMap := toMap(cfg)

	// Marshal to YAML
	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Print header with documentation
	fmt.Println("# legisub Configuration File")
	fmt.Println("# ===========================")
	fmt.Println("#")
	fmt.Println("# Values shown below are the effective configuration: defaults plus any config file and environment overrides.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   LEGISUB_SERVER_HOST, LEGISUB_SERVER_PORT")
	fmt.Println("#   LEGISUB_DATABASE_DRIVER, LEGISUB_DATABASE_DSN")
	fmt.Println("#   LEGISUB_ASR_PROVIDER_URL, LEGISUB_ASR_API_KEY")
	fmt.Println("#   LEGISUB_LOGGING_LEVEL, LEGISUB_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
