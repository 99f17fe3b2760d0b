package acme

/*
	Auto Renewer

	Check the certificate on a cron schedule and request a new one
	when it is missing or close to expiry
*/

import (
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"imuslab.com/edgeproxy/mod/info/logger"
	"imuslab.com/edgeproxy/mod/tlscert"
)

// CertObtainer is implemented by ACMEHandler
type CertObtainer interface {
	ObtainCert(domains []string) error
}

type AutoRenewer struct {
	Domains        []string
	CertFile       string
	EarlyRenewDays int
	Schedule       string
	OnRenewed      func() //Called after a successful renewal

	obtainer CertObtainer
	logger   *logger.Logger
	cron     *cron.Cron
	running  sync.Mutex
}

func NewAutoRenewer(schedule string, earlyRenewDays int, certFile string, domains []string, obtainer CertObtainer, logger *logger.Logger) (*AutoRenewer, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, err
	}
	if earlyRenewDays < 1 {
		return nil, errors.New("early renew days must be at least 1")
	}
	return &AutoRenewer{
		Domains:        domains,
		CertFile:       certFile,
		EarlyRenewDays: earlyRenewDays,
		Schedule:       schedule,
		obtainer:       obtainer,
		logger:         logger,
	}, nil
}

func (a *AutoRenewer) Logf(message string, err error) {
	if a.logger != nil {
		a.logger.PrintAndLog("cert-renew", message, err)
	}
}

// Start the cron schedule. A check also runs right away
func (a *AutoRenewer) Start() error {
	c := cron.New()
	_, err := c.AddFunc(a.Schedule, func() {
		a.CheckAndRenewCertificate(time.Now())
	})
	if err != nil {
		return err
	}
	a.cron = c
	c.Start()
	go a.CheckAndRenewCertificate(time.Now())
	a.Logf("Auto renewer started with schedule \""+a.Schedule+"\"", nil)
	return nil
}

// NeedsRenewal report if the certificate is missing, unreadable or expires
// within EarlyRenewDays of now
func (a *AutoRenewer) NeedsRenewal(now time.Time) (bool, string) {
	expiry, err := tlscert.ReadCertificateExpiry(a.CertFile)
	if errors.Is(err, os.ErrNotExist) {
		return true, "certificate not found"
	} else if err != nil {
		return true, "certificate unreadable: " + err.Error()
	}

	remaining := expiry.Sub(now)
	if remaining < time.Duration(a.EarlyRenewDays)*24*time.Hour {
		return true, "certificate expires in " + strconv.Itoa(int(remaining.Hours()/24)) + " days"
	}
	return false, ""
}

// CheckAndRenewCertificate renew the certificate if needed. Return true if a new
// certificate was issued. Overlapping runs are skipped
func (a *AutoRenewer) CheckAndRenewCertificate(now time.Time) (bool, error) {
	if !a.running.TryLock() {
		return false, nil
	}
	defer a.running.Unlock()

	renew, reason := a.NeedsRenewal(now)
	if !renew {
		return false, nil
	}

	a.Logf("Renewing certificate: "+reason, nil)
	if err := a.obtainer.ObtainCert(a.Domains); err != nil {
		a.Logf("Certificate renewal failed", err)
		return false, err
	}
	if a.OnRenewed != nil {
		a.OnRenewed()
	}
	return true, nil
}

// Close stop the schedule and wait for a running check to finish
func (a *AutoRenewer) Close() {
	if a.cron == nil {
		return
	}
	<-a.cron.Stop().Done()
	a.cron = nil
}
