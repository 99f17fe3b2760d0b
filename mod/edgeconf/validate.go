package edgeconf

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"imuslab.com/edgeproxy/mod/database/dbinc"
)

// Validate check the whole configuration and report every problem found
func Validate(cfg *Config) error {
	var result *multierror.Error
	fail := func(field string, format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}

	if cfg.Hostname == "" || strings.ContainsAny(cfg.Hostname, "/: ") {
		fail("hostname", "invalid hostname %q", cfg.Hostname)
	}

	if err := validateListenAddr(cfg.Listen.HTTP); err != nil {
		fail("listen.http", "%v", err)
	}
	if err := validateListenAddr(cfg.Listen.HTTPS); err != nil {
		fail("listen.https", "%v", err)
	}
	if cfg.Listen.HTTP == cfg.Listen.HTTPS {
		fail("listen", "http and https cannot share the address %q", cfg.Listen.HTTP)
	}

	if cfg.TLS.CertFile == "" {
		fail("tls.cert_file", "is required")
	}
	if cfg.TLS.KeyFile == "" {
		fail("tls.key_file", "is required")
	}
	if _, ok := tlsVersions[cfg.TLS.MinVersion]; !ok {
		fail("tls.min_version", "unsupported version %q, use 1.0, 1.1, 1.2 or 1.3", cfg.TLS.MinVersion)
	}
	if cfg.TLS.ReloadInterval < 0 {
		fail("tls.reload_interval", "cannot be negative")
	}

	if cfg.Origin.Host == "" {
		fail("origin.host", "is required")
	}
	if cfg.Origin.Port < 1 || cfg.Origin.Port > 65535 {
		fail("origin.port", "port %d out of range", cfg.Origin.Port)
	}
	if cfg.Origin.DialTimeout <= 0 {
		fail("origin.dial_timeout", "must be positive")
	}
	if cfg.Origin.ResponseTimeout <= 0 {
		fail("origin.response_timeout", "must be positive")
	}
	if cfg.Origin.FlushInterval < -1 {
		fail("origin.flush_interval", "use -1 for immediate flush or a positive duration")
	}

	if cfg.ACME.Webroot == "" {
		fail("acme.webroot", "is required")
	}
	if cfg.ACME.Enabled {
		if !strings.Contains(cfg.ACME.Email, "@") {
			fail("acme.email", "a contact email is required when acme is enabled")
		}
		if _, err := cron.ParseStandard(cfg.ACME.RenewSchedule); err != nil {
			fail("acme.renew_schedule", "%v", err)
		}
		if cfg.ACME.EarlyRenewDays < 1 {
			fail("acme.early_renew_days", "must be at least 1")
		}
		if cfg.ACME.CAURL != "" {
			if u, err := url.Parse(cfg.ACME.CAURL); err != nil || u.Scheme != "https" || u.Host == "" {
				fail("acme.ca_url", "must be an https URL")
			}
		}
	}

	if cfg.Compression.Level < 1 || cfg.Compression.Level > 9 {
		fail("compression.level", "level %d out of range 1-9", cfg.Compression.Level)
	}
	if cfg.Compression.MinSize < 0 {
		fail("compression.min_size", "cannot be negative")
	}

	if cfg.Stats.Enabled {
		if err := validateListenAddr(cfg.Stats.Listen); err != nil {
			fail("stats.listen", "%v", err)
		}
		if cfg.Stats.SaveInterval <= 0 {
			fail("stats.save_interval", "must be positive")
		}
	}

	if cfg.Database.Path == "" {
		fail("database.path", "is required")
	}
	if _, ok := dbinc.ParseBackendType(cfg.Database.Backend); !ok {
		fail("database.backend", "unknown backend %q", cfg.Database.Backend)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		fail("log.format", "unknown format %q", cfg.Log.Format)
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		fail("log.level", "%v", err)
	}

	return result.ErrorOrNil()
}

func validateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port in listen address %q", addr)
	}
	return nil
}
