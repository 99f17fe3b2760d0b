package edgeconf

/*
	Edge Configuration

	The YAML configuration of the edge proxy. Loaded once at startup,
	immutable afterward.
*/

import (
	"crypto/tls"
	"net"
	"net/url"
	"strconv"
	"time"

	"imuslab.com/edgeproxy/mod/netutils"
)

type Config struct {
	Hostname    string            `yaml:"hostname"`
	Listen      ListenConfig      `yaml:"listen"`
	TLS         TLSConfig         `yaml:"tls"`
	Origin      OriginConfig      `yaml:"origin"`
	ACME        ACMEConfig        `yaml:"acme"`
	Compression CompressionConfig `yaml:"compression"`
	Stats       StatsConfig       `yaml:"stats"`
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
}

type ListenConfig struct {
	HTTP          string `yaml:"http"`           //Plaintext listener, e.g. ":80"
	HTTPS         string `yaml:"https"`          //Encrypted listener, e.g. ":443"
	ProxyProtocol bool   `yaml:"proxy_protocol"` //Accept PROXY protocol headers on both listeners
}

type TLSConfig struct {
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
	CertStore      string        `yaml:"cert_store"` //Optional folder of <domain>.pem / <domain>.key pairs
	MinVersion     string        `yaml:"min_version"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

type OriginConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

type ACMEConfig struct {
	Webroot        string `yaml:"webroot"`
	Enabled        bool   `yaml:"enabled"` //Use the built-in ACME client instead of an external one
	Email          string `yaml:"email"`
	CAURL          string `yaml:"ca_url"`
	RenewSchedule  string `yaml:"renew_schedule"`
	EarlyRenewDays int    `yaml:"early_renew_days"`
}

type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`
	Level   int  `yaml:"level"`
	MinSize int  `yaml:"min_size"`
}

type StatsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Listen       string        `yaml:"listen"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

type DatabaseConfig struct {
	Path    string `yaml:"path"`
	Backend string `yaml:"backend"`
}

type LogConfig struct {
	Folder  string `yaml:"folder"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level"`
	Traffic bool   `yaml:"traffic"`
}

// OriginURL return the plain HTTP base URL of the origin
func (c *Config) OriginURL() *url.URL {
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(c.Origin.Host, strconv.Itoa(c.Origin.Port)),
	}
}

// HTTPSPort return the port of the encrypted listener, 443 if not parsable
func (c *Config) HTTPSPort() int {
	p, err := strconv.Atoi(netutils.PortFromListenAddr(c.Listen.HTTPS))
	if err != nil || p == 0 {
		return 443
	}
	return p
}

// TLSMinVersion map the configured version string to crypto/tls constants
func (c *Config) TLSMinVersion() uint16 {
	if v, ok := tlsVersions[c.TLS.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

var tlsVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}
