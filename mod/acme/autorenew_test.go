package acme_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imuslab.com/edgeproxy/mod/acme"
	"imuslab.com/edgeproxy/mod/info/logger"
	"imuslab.com/edgeproxy/mod/tlscert"
)

type fakeObtainer struct {
	calls  [][]string
	err    error
	onCall func()
}

func (f *fakeObtainer) ObtainCert(domains []string) error {
	f.calls = append(f.calls, domains)
	if f.onCall != nil {
		f.onCall()
	}
	return f.err
}

func newRenewer(t *testing.T, certFile string, obtainer acme.CertObtainer) *acme.AutoRenewer {
	t.Helper()
	l, err := logger.NewLogger("test", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(l.Close)
	renewer, err := acme.NewAutoRenewer("0 3 * * *", 30, certFile, []string{"example.com"}, obtainer, l)
	require.NoError(t, err)
	return renewer
}

func writeCert(t *testing.T, validFor time.Duration) string {
	t.Helper()
	dir := t.TempDir()
	certFile := filepath.Join(dir, "fullchain.pem")
	require.NoError(t, tlscert.GenerateSelfSignedCertificate("example.com", nil, certFile, filepath.Join(dir, "privkey.pem"), validFor))
	return certFile
}

func TestRenewWhenMissing(t *testing.T) {
	obtainer := &fakeObtainer{}
	renewer := newRenewer(t, filepath.Join(t.TempDir(), "fullchain.pem"), obtainer)

	renewed := false
	renewer.OnRenewed = func() { renewed = true }
	ok, err := renewer.CheckAndRenewCertificate(time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, renewed)
	assert.Equal(t, [][]string{{"example.com"}}, obtainer.calls)
}

func TestRenewWhenExpiringSoon(t *testing.T) {
	obtainer := &fakeObtainer{}
	renewer := newRenewer(t, writeCert(t, 10*24*time.Hour), obtainer)

	needs, reason := renewer.NeedsRenewal(time.Now())
	assert.True(t, needs)
	assert.Contains(t, reason, "expires in")

	ok, err := renewer.CheckAndRenewCertificate(time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, obtainer.calls, 1)
}

func TestNoRenewWhenValid(t *testing.T) {
	obtainer := &fakeObtainer{}
	renewer := newRenewer(t, writeCert(t, 90*24*time.Hour), obtainer)

	ok, err := renewer.CheckAndRenewCertificate(time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, obtainer.calls)

	//Sixty five days later the same certificate is inside the renew window
	needs, _ := renewer.NeedsRenewal(time.Now().Add(65 * 24 * time.Hour))
	assert.True(t, needs)
}

func TestRenewFailure(t *testing.T) {
	obtainer := &fakeObtainer{err: errors.New("rate limited")}
	renewer := newRenewer(t, filepath.Join(t.TempDir(), "fullchain.pem"), obtainer)
	renewer.OnRenewed = func() { t.Fatal("OnRenewed must not run on failure") }

	ok, err := renewer.CheckAndRenewCertificate(time.Now())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestInvalidSchedule(t *testing.T) {
	_, err := acme.NewAutoRenewer("every night", 30, "cert.pem", nil, &fakeObtainer{}, nil)
	assert.Error(t, err)
	_, err = acme.NewAutoRenewer("0 3 * * *", 0, "cert.pem", nil, &fakeObtainer{}, nil)
	assert.Error(t, err)
}

func TestStartAndClose(t *testing.T) {
	done := make(chan struct{}, 1)
	obtainer := &fakeObtainer{onCall: func() { done <- struct{}{} }}
	renewer := newRenewer(t, filepath.Join(t.TempDir(), "fullchain.pem"), obtainer)
	require.NoError(t, renewer.Start())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("initial check did not run")
	}
	renewer.Close()
}

func TestRenewWithoutLogger(t *testing.T) {
	obtainer := &fakeObtainer{err: errors.New("ca unreachable")}
	renewer, err := acme.NewAutoRenewer("0 3 * * *", 30, filepath.Join(t.TempDir(), "fullchain.pem"), []string{"example.com"}, obtainer, nil)
	require.NoError(t, err)

	ok, err := renewer.CheckAndRenewCertificate(time.Now())
	assert.False(t, ok)
	assert.EqualError(t, err, "ca unreachable")
}
