package tlscert

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// This remove the certificates in the list where either the
// public key or the private key is missing
func getCertPairs(certFiles []string) []string {
	pemMap := make(map[string]bool)
	keyMap := make(map[string]bool)

	for _, filename := range certFiles {
		if filepath.Ext(filename) == ".pem" {
			pemMap[strings.TrimSuffix(filename, ".pem")] = true
		} else if filepath.Ext(filename) == ".key" {
			keyMap[strings.TrimSuffix(filename, ".key")] = true
		}
	}

	var result []string
	for domain := range pemMap {
		if keyMap[domain] {
			result = append(result, domain)
		}
	}

	return result
}

// Convert a domain name to a filename format, "*" becomes "_"
func domainToFilename(domain string, ext string) string {
	domain = strings.TrimSpace(domain)
	if strings.HasPrefix(domain, "*") {
		domain = "_" + strings.TrimPrefix(domain, "*")
	}
	return domain + "." + strings.TrimPrefix(ext, ".")
}

func filenameToDomain(filename string) string {
	ext := filepath.Ext(filename)
	if ext == ".pem" || ext == ".key" {
		filename = strings.TrimSuffix(filename, ext)
	}
	if strings.HasPrefix(filename, "_") {
		filename = "*" + filename[1:]
	}
	return filename
}

// matchClosestDomainCertificate pick the exact domain if present, otherwise the
// wildcard of the nearest parent domain. A wildcard only covers one label
func matchClosestDomainCertificate(serverName string, domains []string) string {
	available := make(map[string]bool, len(domains))
	for _, d := range domains {
		available[strings.ToLower(d)] = true
	}
	if available[serverName] {
		return serverName
	}

	if _, parent, ok := strings.Cut(serverName, "."); ok && strings.Contains(parent, ".") {
		if available["*."+parent] {
			return "*." + parent
		}
	}
	return ""
}

// ReadCertificateExpiry parse the first certificate of a PEM chain and return its NotAfter
func ReadCertificateExpiry(certFile string) (time.Time, error) {
	content, err := os.ReadFile(certFile)
	if err != nil {
		return time.Time{}, err
	}
	block, _ := pem.Decode(content)
	if block == nil || block.Type != "CERTIFICATE" {
		return time.Time{}, errors.New("no certificate found in " + certFile)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}
