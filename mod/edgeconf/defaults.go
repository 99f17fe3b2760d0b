package edgeconf

import (
	"path/filepath"
	"time"
)

const (
	DefaultConfigPath     = "./conf/edge.yaml"
	DefaultHostname       = "localhost"
	DefaultHTTPListen     = ":80"
	DefaultHTTPSListen    = ":443"
	DefaultOriginHost     = "127.0.0.1"
	DefaultOriginPort     = 5000
	DefaultOriginTimeout  = 60 * time.Second //nginx proxy_connect_timeout / proxy_read_timeout
	DefaultWebroot        = "/var/www/certbot"
	DefaultRenewSchedule  = "0 3 * * *"
	DefaultEarlyRenewDays = 30
	DefaultGzipLevel      = 6
	DefaultGzipMinSize    = 256
	DefaultStatsListen    = "127.0.0.1:9180"
)

// Default return a configuration with every field set to its default value
func Default() *Config {
	cfg := &Config{
		Compression: CompressionConfig{Enabled: true},
		Stats:       StatsConfig{Enabled: true},
		Log:         LogConfig{Traffic: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fill every zero value field with its default.
// Boolean switches are left as they are.
func ApplyDefaults(cfg *Config) {
	if cfg.Hostname == "" {
		cfg.Hostname = DefaultHostname
	}

	if cfg.Listen.HTTP == "" {
		cfg.Listen.HTTP = DefaultHTTPListen
	}
	if cfg.Listen.HTTPS == "" {
		cfg.Listen.HTTPS = DefaultHTTPSListen
	}

	//Certbot layout for the configured hostname
	liveFolder := filepath.Join("/etc/letsencrypt/live", cfg.Hostname)
	if cfg.TLS.CertFile == "" {
		cfg.TLS.CertFile = filepath.Join(liveFolder, "fullchain.pem")
	}
	if cfg.TLS.KeyFile == "" {
		cfg.TLS.KeyFile = filepath.Join(liveFolder, "privkey.pem")
	}
	if cfg.TLS.MinVersion == "" {
		cfg.TLS.MinVersion = "1.2"
	}
	if cfg.TLS.ReloadInterval == 0 {
		cfg.TLS.ReloadInterval = time.Minute
	}

	if cfg.Origin.Host == "" {
		cfg.Origin.Host = DefaultOriginHost
	}
	if cfg.Origin.Port == 0 {
		cfg.Origin.Port = DefaultOriginPort
	}
	if cfg.Origin.DialTimeout == 0 {
		cfg.Origin.DialTimeout = DefaultOriginTimeout
	}
	if cfg.Origin.ResponseTimeout == 0 {
		cfg.Origin.ResponseTimeout = DefaultOriginTimeout
	}

	if cfg.ACME.Webroot == "" {
		cfg.ACME.Webroot = DefaultWebroot
	}
	if cfg.ACME.RenewSchedule == "" {
		cfg.ACME.RenewSchedule = DefaultRenewSchedule
	}
	if cfg.ACME.EarlyRenewDays == 0 {
		cfg.ACME.EarlyRenewDays = DefaultEarlyRenewDays
	}

	if cfg.Compression.Level == 0 {
		cfg.Compression.Level = DefaultGzipLevel
	}
	if cfg.Compression.MinSize == 0 {
		cfg.Compression.MinSize = DefaultGzipMinSize
	}

	if cfg.Stats.Listen == "" {
		cfg.Stats.Listen = DefaultStatsListen
	}
	if cfg.Stats.SaveInterval == 0 {
		cfg.Stats.SaveInterval = 10 * time.Minute
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./sys.db"
	}
	if cfg.Database.Backend == "" {
		cfg.Database.Backend = "auto"
	}

	if cfg.Log.Folder == "" {
		cfg.Log.Folder = "./log"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
