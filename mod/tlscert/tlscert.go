package tlscert

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jellydator/ttlcache/v3"
	"imuslab.com/edgeproxy/mod/info/logger"
	"imuslab.com/edgeproxy/mod/utils"
)

var ErrNoCertificate = errors.New("no certificate available")

// Certificates expiring within this window are reported on load
const ExpiryWarningWindow = 30 * 24 * time.Hour

type Options struct {
	CertFile       string        //Default certificate chain (PEM)
	KeyFile        string        //Default private key (PEM)
	CertStore      string        //Optional folder with <domain>.pem / <domain>.key pairs
	ReloadInterval time.Duration //Polling interval for file changes
	AllowMissing   bool          //Start without a default pair, e.g. before the first ACME issuance
	Logger         *logger.Logger
}

type Manager struct {
	CertFile  string
	KeyFile   string
	CertStore string

	interval time.Duration
	logger   *logger.Logger

	mu          sync.RWMutex
	defaultCert *tls.Certificate
	defaultLeaf *x509.Certificate
	certTime    time.Time
	keyTime     time.Time

	storeCache *ttlcache.Cache[string, *tls.Certificate]
	watcher    *fsnotify.Watcher
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

// NewManager load the default certificate pair and prepare the cert store cache
func NewManager(opts *Options) (*Manager, error) {
	interval := opts.ReloadInterval
	if interval <= 0 {
		interval = time.Minute
	}

	thisManager := Manager{
		CertFile:  opts.CertFile,
		KeyFile:   opts.KeyFile,
		CertStore: opts.CertStore,
		interval:  interval,
		logger:    opts.Logger,
		storeCache: ttlcache.New[string, *tls.Certificate](
			ttlcache.WithTTL[string, *tls.Certificate](interval),
		),
	}

	if err := thisManager.Reload(); err != nil {
		if !opts.AllowMissing {
			return nil, err
		}
		thisManager.logf("Default certificate not loaded, waiting for "+opts.CertFile, err)
	}
	return &thisManager, nil
}

// GetCert is the tls.Config.GetCertificate callback. A pair in the cert store
// matching the SNI name wins over the default pair
func (m *Manager) GetCert(helloInfo *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.CertStore != "" && helloInfo.ServerName != "" {
		serverName := strings.ToLower(helloInfo.ServerName)
		if item := m.storeCache.Get(serverName); item != nil {
			if item.Value() != nil {
				return item.Value(), nil
			}
		} else {
			cert := m.loadFromStore(serverName)
			//nil is cached too so misses do not hit the disk on every handshake
			m.storeCache.Set(serverName, cert, ttlcache.DefaultTTL)
			if cert != nil {
				return cert, nil
			}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaultCert == nil {
		return nil, ErrNoCertificate
	}
	return m.defaultCert, nil
}

func (m *Manager) loadFromStore(serverName string) *tls.Certificate {
	domains, err := m.ListCertDomains()
	if err != nil {
		m.logf("Unable to list cert store", err)
		return nil
	}
	matching := matchClosestDomainCertificate(serverName, domains)
	if matching == "" {
		return nil
	}

	pubKey := filepath.Join(m.CertStore, domainToFilename(matching, ".pem"))
	priKey := filepath.Join(m.CertStore, domainToFilename(matching, ".key"))
	cert, err := tls.LoadX509KeyPair(pubKey, priKey)
	if err != nil {
		m.logf("Unable to load certificate for "+serverName, err)
		return nil
	}
	return &cert
}

// ListCertDomains return the domains that have a complete pair in the cert store
func (m *Manager) ListCertDomains() ([]string, error) {
	if m.CertStore == "" || !utils.IsDir(m.CertStore) {
		return []string{}, nil
	}
	files, err := filepath.Glob(filepath.Join(m.CertStore, "*"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}

	domains := []string{}
	for _, pair := range getCertPairs(names) {
		domains = append(domains, filenameToDomain(pair))
	}
	return domains, nil
}

// DefaultCertExpiry return the NotAfter of the loaded default certificate
func (m *Manager) DefaultCertExpiry() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaultLeaf == nil {
		return time.Time{}, false
	}
	return m.defaultLeaf.NotAfter, true
}

// TLSConfig build the server side tls.Config with HTTP/2 and HTTP/1.1 ALPN
func (m *Manager) TLSConfig(minVersion uint16) *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCert,
		MinVersion:     minVersion,
		NextProtos:     []string{"h2", "http/1.1"},
	}
}
