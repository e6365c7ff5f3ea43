package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// loadConfig builds the configuration in four layers: defaults, embedded YAML,
// the .env file and finally process environment variables (IMPORTER_BROKER_URL, ...).
// ${VAR} placeholders in the YAML are expanded after the .env file is loaded.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()

	var yamlConfig Config
	if err := yaml.Unmarshal(expandEnv(embeddedConfig), &yamlConfig); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to unmarshal embedded config", err)
	}
	mergeValue(reflect.ValueOf(cfg).Elem(), reflect.ValueOf(&yamlConfig).Elem())

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}
	cfg.EmbeddedConfig = embeddedConfig
	return cfg, nil
}

// expandEnv replaces ${VAR} and $VAR in the YAML text. Unset variables expand to "".
func expandEnv(raw []byte) []byte {
	return []byte(os.ExpandEnv(string(raw)))
}

// NewConfigProvider is an Fx provider that loads, validates and returns *Config.
// It also applies the configured log level and log file.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Importer.System.Logging.Level)
	if err := logger.Configure(cfg.Importer.System.Logging.File); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to configure log output", err)
	}
	logger.Infof("Log level set to: %s", cfg.Importer.System.Logging.Level)

	if err := Validate(cfg); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "invalid configuration", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration without the Fx wiring. Used by the CLI commands
// that do not start the container.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig)
}

// Validate checks value ranges and that configured retryable error names are registered.
func Validate(cfg *Config) error {
	imp := cfg.Importer
	if imp.Import.ChunkSize <= 0 {
		return fmt.Errorf("import.chunk_size must be positive, got %d", imp.Import.ChunkSize)
	}
	if imp.Import.DispatchWorkers <= 0 || imp.Import.DispatchQueueCapacity < 0 {
		return fmt.Errorf("import.dispatch_workers must be positive and dispatch_queue_capacity non-negative")
	}
	if imp.Broker.Concurrency <= 0 || imp.Broker.Concurrency > imp.Broker.MaxConcurrency {
		return fmt.Errorf("broker.concurrency must be in [1,%d], got %d", imp.Broker.MaxConcurrency, imp.Broker.Concurrency)
	}
	if imp.Resilience.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("resilience.retry.max_attempts must be positive")
	}
	if imp.Resilience.Bulkhead.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("resilience.bulkhead.max_concurrent_calls must be positive")
	}
	return checkErrorNames(imp.Resilience.Retry.RetryableExceptions, "resilience.retry")
}

func checkErrorNames(names []string, section string) error {
	for _, name := range names {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s references unknown error type '%s'; ensure it is registered", section, name)
		}
	}
	return nil
}

// mergeValue copies every non-zero field of src over dst. Structs are merged
// recursively, maps are merged key by key, everything else is replaced.
func mergeValue(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Struct:
		for i := 0; i < src.NumField(); i++ {
			if !dst.Field(i).CanSet() {
				continue
			}
			mergeValue(dst.Field(i), src.Field(i))
		}
	case reflect.Map:
		if src.IsNil() {
			return
		}
		if dst.IsNil() {
			dst.Set(reflect.MakeMap(dst.Type()))
		}
		iter := src.MapRange()
		for iter.Next() {
			dst.SetMapIndex(iter.Key(), iter.Value())
		}
	default:
		if !src.IsZero() {
			dst.Set(src)
		}
	}
}

// loadStructFromEnv walks the struct and overrides fields from environment variables
// named after the upper-cased yaml path, for example IMPORTER_CACHE_ADDR.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map && field.Type().Elem().Kind() == reflect.Interface:
			loadNamedMapsFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadNamedMapsFromEnv fills named adaptor configurations, e.g.
// IMPORTER_DATABASE_IMPORTDB_HOST=db sets database["importdb"]["host"]="db".
// Values stay strings; configbinder decodes them weakly typed.
func loadNamedMapsFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyAndField := strings.SplitN(parts[0], "_", 2)
		if len(keyAndField) != 2 {
			continue
		}
		name := strings.ToLower(keyAndField[0])
		fieldName := strings.ToLower(keyAndField[1])

		entry := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(name)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				entry = m
			}
		}
		entry[fieldName] = parts[1]
		mapField.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(entry))
	}
}

// setField sets a scalar field from its string form.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			items := strings.Split(value, ",")
			for i := range items {
				items[i] = strings.TrimSpace(items[i])
			}
			field.Set(reflect.ValueOf(items))
		}
	}
	return nil
}
