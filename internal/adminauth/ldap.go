// Package adminauth optionally gates the admin HTTP API behind an LDAP
// bind, adapted from the teacher's internal/ldap.Client — the same
// Config shape and the same TLS-or-plain Dial, trimmed to just what a bind
// check needs (no group mapping, no JIT provisioning: the admin API has no
// notion of roles, only "authenticated or not").
//
// This guards only the observability surface this expansion adds.
// Registry-protocol trust is delegated to the cluster transport, per
// spec.md's non-goals.
package adminauth

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Config configures the optional LDAP gate. A zero Config (Server == "")
// disables authentication entirely.
type Config struct {
	Server  string
	Port    int
	UseTLS  bool
	BaseDN  string
	Timeout time.Duration
}

// Enabled reports whether Config names an LDAP server to authenticate
// against.
func (c Config) Enabled() bool { return c.Server != "" }

// Authenticator checks admin API credentials against an LDAP directory via
// bind-as-user.
type Authenticator struct {
	cfg Config
}

// New returns an Authenticator for cfg. If cfg is not Enabled, Middleware
// passes every request through unchanged.
func New(cfg Config) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Middleware wraps next with an HTTP Basic Auth check against LDAP, or
// passes requests through untouched if authentication is disabled.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.cfg.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.bind(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="regnode admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) bind(user, pass string) bool {
	if pass == "" {
		return false
	}
	address := fmt.Sprintf("%s:%d", a.cfg.Server, a.cfg.Port)

	var conn *ldap.Conn
	var err error
	if a.cfg.UseTLS {
		conn, err = ldap.DialTLS("tcp", address, &tls.Config{ServerName: a.cfg.Server, MinVersion: tls.VersionTLS12})
	} else {
		conn, err = ldap.Dial("tcp", address)
	}
	if err != nil {
		return false
	}
	defer conn.Close()

	if a.cfg.Timeout > 0 {
		conn.SetTimeout(a.cfg.Timeout)
	}

	dn := fmt.Sprintf("uid=%s,%s", ldap.EscapeFilter(user), a.cfg.BaseDN)
	return conn.Bind(dn, pass) == nil
}
