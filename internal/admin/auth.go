package admin

import (
	"crypto/subtle"
	"crypto/x509"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Role is what an authenticated admin caller may do.
type Role int

const (
	RoleNone Role = iota
	// RoleReader may inspect state, stores and metrics.
	RoleReader
	// RoleOperator may also install and prune.
	RoleOperator
)

type AuthConfig struct {
	Token     string
	ReadToken string
	// ClientCAFile, when set, also requires a verified client certificate.
	ClientCAFile string
}

// Authenticator checks the optional client certificate first, then the
// bearer token, and resolves the caller's role.
type Authenticator struct {
	tokens    map[Role][]byte
	clientCAs *x509.CertPool
}

type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin token is required")
	}
	a := &Authenticator{tokens: map[Role][]byte{RoleOperator: []byte(token)}}
	if read := strings.TrimSpace(cfg.ReadToken); read != "" {
		if read == token {
			return nil, errors.New("admin read token must differ from the operator token")
		}
		a.tokens[RoleReader] = []byte(read)
	}

	if cfg.ClientCAFile != "" {
		pool, err := loadCertPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		a.clientCAs = pool
	}
	return a, nil
}

// Authenticate returns the caller's role or an *AuthError.
func (a *Authenticator) Authenticate(r *http.Request) (Role, error) {
	if a == nil {
		return RoleNone, &AuthError{Status: http.StatusUnauthorized, Message: "auth unavailable"}
	}
	if a.clientCAs != nil && !a.verifiedClient(r) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			return RoleNone, &AuthError{Status: http.StatusForbidden, Message: "client certificate required"}
		}
		return RoleNone, &AuthError{Status: http.StatusForbidden, Message: "client certificate invalid"}
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return RoleNone, &AuthError{Status: http.StatusUnauthorized, Message: "token required"}
	}
	for _, role := range []Role{RoleOperator, RoleReader} {
		want, ok := a.tokens[role]
		if ok && subtle.ConstantTimeCompare([]byte(token), want) == 1 {
			return role, nil
		}
	}
	return RoleNone, &AuthError{Status: http.StatusUnauthorized, Message: "token invalid"}
}

func (a *Authenticator) verifiedClient(r *http.Request) bool {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return false
	}
	peers := r.TLS.PeerCertificates
	intermediates := x509.NewCertPool()
	for _, cert := range peers[1:] {
		intermediates.AddCert(cert)
	}
	_, err := peers[0].Verify(x509.VerifyOptions{
		Roots:         a.clientCAs,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	return err == nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read client CA")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.Errorf("no certificates in client CA %s", path)
	}
	return pool, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
