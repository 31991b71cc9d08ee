// Package config loads CoSign module settings from a YAML file and the environment.
package config

import (
	"crypto"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"

	"github.com/alapierre/gocosign/common"
	"github.com/alapierre/gocosign/cosign"
	"github.com/alapierre/gocosign/signer"
)

// Environment variables applied over file values.
const (
	EnvEndpoint          = "COSIGN_ENDPOINT"
	EnvUsername          = "COSIGN_USERNAME"
	EnvPassword          = "COSIGN_PASSWORD"
	EnvDomain            = "COSIGN_DOMAIN"
	EnvDigest            = "COSIGN_DIGEST"
	EnvTimestampURL      = "COSIGN_TIMESTAMP_URL"
	EnvTimestampUsername = "COSIGN_TIMESTAMP_USERNAME"
	EnvTimestampPassword = "COSIGN_TIMESTAMP_PASSWORD"
	EnvCAFile            = "COSIGN_CA_FILE"
	EnvServerName        = "COSIGN_SERVER_NAME"
	EnvInsecure          = "COSIGN_INSECURE_SKIP_VERIFY"
	EnvTimeout           = "COSIGN_TIMEOUT"
)

const defaultDigest = "sha256"

type Config struct {
	Endpoint  string           `json:"endpoint"`
	Username  string           `json:"username"`
	Password  string           `json:"password"`
	Domain    string           `json:"domain"`
	Digest    string           `json:"digest,omitempty"`
	Timestamp *TimestampConfig `json:"timestamp,omitempty"`
	TLS       TLSConfig        `json:"tls,omitempty"`

	// Timeout is a duration string such as "30s".
	Timeout string `json:"timeout,omitempty"`
}

type TimestampConfig struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type TLSConfig struct {
	CAFile             string `json:"caFile,omitempty"`
	ServerName         string `json:"serverName,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty"`
}

// Load reads the YAML file at path. An empty path yields an empty configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads the given .env files (missing files are skipped) into the process
// environment and applies the COSIGN_* variables to c.
func (c *Config) LoadEnv(envFiles ...string) error {
	var existing []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	return c.ApplyEnv(os.LookupEnv)
}

// ApplyEnv overrides fields with the variables returned by lookup. An empty
// COSIGN_TIMESTAMP_URL disables timestamping; timestamp credentials without a
// url leave a timestamp section that fails Validate.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	set(EnvEndpoint, &c.Endpoint)
	set(EnvUsername, &c.Username)
	set(EnvPassword, &c.Password)
	set(EnvDomain, &c.Domain)
	set(EnvDigest, &c.Digest)
	set(EnvCAFile, &c.TLS.CAFile)
	set(EnvServerName, &c.TLS.ServerName)
	set(EnvTimeout, &c.Timeout)

	if v, ok := lookup(EnvInsecure); ok {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvInsecure, err)
		}
		c.TLS.InsecureSkipVerify = insecure
	}

	if url, ok := lookup(EnvTimestampURL); ok {
		if url == "" {
			c.Timestamp = nil
		} else {
			if c.Timestamp == nil {
				c.Timestamp = &TimestampConfig{}
			}
			c.Timestamp.URL = url
		}
	}
	for _, key := range []string{EnvTimestampUsername, EnvTimestampPassword} {
		if v, ok := lookup(key); ok && v != "" && c.Timestamp == nil {
			// Validate reports the missing url.
			c.Timestamp = &TimestampConfig{}
		}
	}
	if c.Timestamp != nil {
		set(EnvTimestampUsername, &c.Timestamp.Username)
		set(EnvTimestampPassword, &c.Timestamp.Password)
	}

	return nil
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Endpoint == "" {
		result = multierror.Append(result, fmt.Errorf("endpoint is required"))
	} else if _, err := cosign.ServiceURL(c.Endpoint); err != nil {
		result = multierror.Append(result, err)
	}

	if _, err := c.digest(); err != nil {
		result = multierror.Append(result, err)
	}

	if _, err := c.timeout(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.Timestamp != nil && c.Timestamp.URL == "" {
		result = multierror.Append(result, fmt.Errorf("timestamp url is required when timestamp is configured"))
	}

	if c.TLS.CAFile != "" {
		if _, err := os.Stat(c.TLS.CAFile); err != nil {
			result = multierror.Append(result, fmt.Errorf("ca file: %w", err))
		}
	}

	return result.ErrorOrNil()
}

// ModuleConfig converts the configuration for cosign.NewHTTPModule.
func (c *Config) ModuleConfig(log common.Logger) (cosign.Config, error) {
	if err := c.Validate(); err != nil {
		return cosign.Config{}, err
	}

	digest, _ := c.digest()
	timeout, _ := c.timeout()

	mc := cosign.Config{
		Endpoint: c.Endpoint,
		Credentials: cosign.Credentials{
			Username: c.Username,
			Password: c.Password,
			Domain:   c.Domain,
		},
		Digest: digest,
		TLS: cosign.TransportConfig{
			CAFile:             c.TLS.CAFile,
			ServerName:         c.TLS.ServerName,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
			Timeout:            timeout,
		},
		Logger: log,
	}

	if c.Timestamp != nil {
		mc.Timestamp = &cosign.TimestampConfig{
			URL:      c.Timestamp.URL,
			Username: c.Timestamp.Username,
			Password: c.Timestamp.Password,
		}
	}
	return mc, nil
}

func (c *Config) digest() (crypto.Hash, error) {
	name := c.Digest
	if name == "" {
		name = defaultDigest
	}
	return signer.ParseDigest(name)
}

func (c *Config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout: %s is negative", c.Timeout)
	}
	return d, nil
}
