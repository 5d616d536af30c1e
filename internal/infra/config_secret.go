package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SecretConfig holds credentials for a private daemon RPC endpoint.
type SecretConfig struct {
	RPC struct {
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rpc"`
}

// LoadSecretConfig loads RPC credentials from a separate yaml file.
// It returns error if file is missing (Fail Fast).
func LoadSecretConfig(path string) (*SecretConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret config: %w", err)
	}

	var cfg SecretConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse secret config: %w", err)
	}

	if v := os.Getenv("CONVERT_RPC_USER"); v != "" {
		cfg.RPC.User = v
	}
	if v := os.Getenv("CONVERT_RPC_PASSWORD"); v != "" {
		cfg.RPC.Password = v
	}

	return &cfg, nil
}

// HasCredentials reports whether basic auth should be sent.
func (s *SecretConfig) HasCredentials() bool {
	return s != nil && s.RPC.User != ""
}
