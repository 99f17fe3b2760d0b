package tlscert

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reload read the default pair from disk. On failure the previous pair stays in use
func (m *Manager) Reload() error {
	certInfo, err := os.Stat(m.CertFile)
	if err != nil {
		return err
	}
	keyInfo, err := os.Stat(m.KeyFile)
	if err != nil {
		return err
	}

	cert, err := tls.LoadX509KeyPair(m.CertFile, m.KeyFile)
	if err != nil {
		return err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return err
	}
	cert.Leaf = leaf

	m.mu.Lock()
	m.defaultCert = &cert
	m.defaultLeaf = leaf
	m.certTime = certInfo.ModTime()
	m.keyTime = keyInfo.ModTime()
	m.mu.Unlock()

	m.logCertificateInfo(leaf)
	return nil
}

// needsReload checks if certificate files have been modified since last load
func (m *Manager) needsReload() bool {
	certInfo, err := os.Stat(m.CertFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(m.KeyFile)
	if err != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaultCert == nil {
		return true
	}
	return !certInfo.ModTime().Equal(m.certTime) || !keyInfo.ModTime().Equal(m.keyTime)
}

func (m *Manager) reloadIfChanged() {
	if !m.needsReload() {
		return
	}
	if err := m.Reload(); err != nil {
		m.logf("Failed to reload certificate "+m.CertFile+", keeping the previous one", err)
		return
	}
	m.logf("Certificate reloaded from "+m.CertFile, nil)
}

func (m *Manager) logCertificateInfo(leaf *x509.Certificate) {
	remaining := time.Until(leaf.NotAfter)
	days := strconv.Itoa(int(remaining.Hours() / 24))
	if remaining < ExpiryWarningWindow {
		m.warnf("Certificate for "+leaf.Subject.CommonName+" expires in "+days+" days ("+leaf.NotAfter.Format(time.RFC3339)+")")
		return
	}
	m.logf("Loaded certificate for "+leaf.Subject.CommonName+", expires in "+days+" days", nil)
}

// StartWatching reload the certificates when the files change. Changes are
// picked up by fsnotify events, with mod time polling as a fallback
func (m *Manager) StartWatching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	watched := map[string]bool{}
	for _, dir := range []string{filepath.Dir(m.CertFile), filepath.Dir(m.KeyFile), m.CertStore} {
		if dir == "" || watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			//Polling still covers this folder
			m.logf("Unable to watch "+dir+", using polling only", err)
			continue
		}
		watched[dir] = true
	}

	m.watcher = watcher
	m.stopChan = make(chan struct{})
	go m.storeCache.Start()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.reloadIfChanged()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if m.CertStore != "" && filepath.Dir(event.Name) == filepath.Clean(m.CertStore) {
					m.storeCache.DeleteAll()
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Chmod) {
					m.reloadIfChanged()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logf("Certificate watcher error", err)
			}
		}
	}()
	return nil
}

// Close stop the watcher and the cache janitor
func (m *Manager) Close() {
	if m.stopChan == nil {
		return
	}
	close(m.stopChan)
	m.watcher.Close()
	m.wg.Wait()
	m.storeCache.Stop()
	m.stopChan = nil
}

func (m *Manager) logf(message string, err error) {
	if m.logger != nil {
		m.logger.PrintAndLog("tlscert", message, err)
	}
}

func (m *Manager) warnf(message string) {
	if m.logger != nil {
		m.logger.Warn("tlscert", message)
	}
}
