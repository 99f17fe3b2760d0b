package edgeconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
	"imuslab.com/edgeproxy/mod/utils"
)

// LoadConfig read the YAML file at path, apply environment overrides,
// fill the defaults and validate the result.
// An empty path skips the file and starts from an empty configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Compression: CompressionConfig{Enabled: true},
		Stats:       StatsConfig{Enabled: true},
		Log:         LogConfig{Traffic: true},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	//Environment overrides go first so derived defaults (e.g. cert paths) follow EDGE_HOSTNAME
	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	strOverrides := map[string]*string{
		"EDGE_HOSTNAME":      &cfg.Hostname,
		"EDGE_ORIGIN_HOST":   &cfg.Origin.Host,
		"EDGE_TLS_CERT_FILE": &cfg.TLS.CertFile,
		"EDGE_TLS_KEY_FILE":  &cfg.TLS.KeyFile,
		"EDGE_LISTEN_HTTP":   &cfg.Listen.HTTP,
		"EDGE_LISTEN_HTTPS":  &cfg.Listen.HTTPS,
		"EDGE_ACME_WEBROOT":  &cfg.ACME.Webroot,
		"EDGE_LOG_LEVEL":     &cfg.Log.Level,
	}
	for name, target := range strOverrides {
		if val, ok := lookup(name); ok && val != "" {
			*target = val
		}
	}

	if val, ok := lookup("EDGE_ORIGIN_PORT"); ok && val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid EDGE_ORIGIN_PORT %q: %w", val, err)
		}
		cfg.Origin.Port = port
	}
	return nil
}

// WriteSample write the default configuration to path as YAML
func WriteSample(path string) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(Default()); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, buf.Bytes(), 0644)
}
