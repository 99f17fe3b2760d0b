package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/http/webroot"
	"github.com/go-acme/lego/v4/registration"
	"imuslab.com/edgeproxy/mod/database"
	"imuslab.com/edgeproxy/mod/info/logger"
	"imuslab.com/edgeproxy/mod/utils"
)

const acmeTable = "acme"

// ACMEUser represents a user in the ACME system.
type ACMEUser struct {
	Email        string
	Registration *registration.Resource
	key          crypto.PrivateKey
}

// GetEmail returns the email of the ACMEUser.
func (u *ACMEUser) GetEmail() string {
	return u.Email
}

// GetRegistration returns the registration resource of the ACMEUser.
func (u ACMEUser) GetRegistration() *registration.Resource {
	return u.Registration
}

// GetPrivateKey returns the private key of the ACMEUser.
func (u *ACMEUser) GetPrivateKey() crypto.PrivateKey {
	return u.key
}

// storedAccount is the database form of an ACMEUser
type storedAccount struct {
	Email        string
	Registration *registration.Resource
	KeyPEM       string
}

// CertificateRecord is saved after each successful issuance
type CertificateRecord struct {
	Domains  []string
	CertURL  string
	IssuedAt time.Time
}

type Options struct {
	Webroot  string //Folder served by the ChallengeHandler
	Email    string
	CAURL    string //ACME directory, Let's Encrypt production if empty
	CertFile string //Target of the issued chain
	KeyFile  string //Target of the issued private key
	Database *database.Database
	Logger   *logger.Logger
}

// ACMEHandler handles ACME-related operations.
type ACMEHandler struct {
	Webroot  string
	Email    string
	CAURL    string
	CertFile string
	KeyFile  string
	Database *database.Database
	Logger   *logger.Logger
}

// NewACME creates a new ACMEHandler instance.
func NewACME(opts *Options) *ACMEHandler {
	caURL := opts.CAURL
	if caURL == "" {
		caURL = lego.LEDirectoryProduction
	}
	thisHandler := &ACMEHandler{
		Webroot:  opts.Webroot,
		Email:    opts.Email,
		CAURL:    caURL,
		CertFile: opts.CertFile,
		KeyFile:  opts.KeyFile,
		Database: opts.Database,
		Logger:   opts.Logger,
	}
	if opts.Database != nil && !opts.Database.TableExists(acmeTable) {
		if err := opts.Database.NewTable(acmeTable); err != nil {
			thisHandler.Logf("Unable to create the "+acmeTable+" table, the account will not be kept", err)
		}
	}
	return thisHandler
}

// Logf write to the logger, if one is set
func (a *ACMEHandler) Logf(message string, err error) {
	if a.Logger != nil {
		a.Logger.PrintAndLog("ACME", message, err)
	}
}

// ObtainCert issue a certificate for the domains with the HTTP-01 webroot
// challenge and write it to CertFile / KeyFile
func (a *ACMEHandler) ObtainCert(domains []string) error {
	if len(domains) == 0 {
		return errors.New("no domain given")
	}
	a.Logf("Obtaining certificate for: "+strings.Join(domains, ", "), nil)

	user, err := a.loadOrCreateUser()
	if err != nil {
		a.Logf("Unable to load ACME account", err)
		return err
	}

	config := lego.NewConfig(user)
	config.CADirURL = a.CAURL
	config.Certificate.KeyType = certcrypto.RSA2048

	client, err := lego.NewClient(config)
	if err != nil {
		a.Logf("Failed to spawn new ACME client from current config", err)
		return err
	}

	provider, err := webroot.NewHTTPProvider(a.Webroot)
	if err != nil {
		a.Logf("Failed to resolve HTTP01 webroot provider", err)
		return err
	}
	if err := client.Challenge.SetHTTP01Provider(provider); err != nil {
		a.Logf("Failed to set HTTP01 provider", err)
		return err
	}

	// New users will need to register
	if user.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			a.Logf("Unable to register client", err)
			return err
		}
		user.Registration = reg
		if err := a.saveUser(user); err != nil {
			a.Logf("Unable to save ACME account", err)
		}
	}

	certificates, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
	if err != nil {
		a.Logf("Obtain certificate failed", err)
		return err
	}

	if err := utils.WriteFileAtomic(a.KeyFile, certificates.PrivateKey, 0600); err != nil {
		a.Logf("Failed to write private key to disk", err)
		return err
	}
	if err := utils.WriteFileAtomic(a.CertFile, certificates.Certificate, 0644); err != nil {
		a.Logf("Failed to write certificate to disk", err)
		return err
	}

	a.recordIssued(domains, certificates.CertURL)
	a.Logf("Certificate issued for "+strings.Join(domains, ", "), nil)
	return nil
}

// recordIssued keep the issuance under cert_<first domain>. A failed write
// is logged only, the certificate is already on disk
func (a *ACMEHandler) recordIssued(domains []string, certURL string) {
	if a.Database == nil {
		return
	}
	err := a.Database.Write(acmeTable, "cert_"+domains[0], CertificateRecord{
		Domains:  domains,
		CertURL:  certURL,
		IssuedAt: time.Now(),
	})
	if err != nil {
		a.Logf("Unable to record issued certificate for "+domains[0], err)
	}
}

func accountKey(email string) string {
	return "account_" + strings.ToLower(email)
}

func (a *ACMEHandler) loadOrCreateUser() (*ACMEUser, error) {
	if a.Database != nil && a.Database.KeyExists(acmeTable, accountKey(a.Email)) {
		var stored storedAccount
		if err := a.Database.Read(acmeTable, accountKey(a.Email), &stored); err != nil {
			return nil, err
		}
		key, err := decodePrivateKey(stored.KeyPEM)
		if err != nil {
			return nil, fmt.Errorf("stored account key is invalid: %w", err)
		}
		return &ACMEUser{Email: stored.Email, Registration: stored.Registration, key: key}, nil
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	user := &ACMEUser{Email: a.Email, key: privateKey}
	return user, a.saveUser(user)
}

func (a *ACMEHandler) saveUser(user *ACMEUser) error {
	if a.Database == nil {
		return nil
	}
	ecKey, ok := user.key.(*ecdsa.PrivateKey)
	if !ok {
		return errors.New("unsupported account key type")
	}
	keyPEM, err := encodePrivateKey(ecKey)
	if err != nil {
		return err
	}
	return a.Database.Write(acmeTable, accountKey(user.Email), storedAccount{
		Email:        user.Email,
		Registration: user.Registration,
		KeyPEM:       keyPEM,
	})
}

func encodePrivateKey(key *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})), nil
}

func decodePrivateKey(keyPEM string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}
