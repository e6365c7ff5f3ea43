package config

import "fmt"

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Bucket for gcs; optional subdirectory for local.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for gcs. Empty uses application default credentials.
	BaseDir         string `yaml:"base_dir"`         // Root directory for local storage.
}

// Validate checks the fields required by the configured type.
func (c StorageConfig) Validate() error {
	switch c.Type {
	case "local":
		if c.BaseDir == "" {
			return fmt.Errorf("storage type 'local' requires base_dir")
		}
	case "gcs":
		if c.BucketName == "" {
			return fmt.Errorf("storage type 'gcs' requires bucket_name")
		}
	case "":
		return fmt.Errorf("storage type is required")
	default:
		return fmt.Errorf("unsupported storage type '%s'", c.Type)
	}
	return nil
}
