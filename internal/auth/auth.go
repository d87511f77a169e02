// Package auth implements the Auth Validator (spec.md §4.6): constant-time
// bearer token / API key / basic-auth checking, optionally backed by JWT
// bearer tokens and bcrypt-hashed basic-auth passwords (SPEC_FULL §4.6-NEW).
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	svcerrors "grafeodb/server/internal/errors"
)

// Credential is the normalized shape every transport translates its own
// authentication envelope into before calling Verify.
type Credential struct {
	BearerToken string
	APIKey      string
	Username    string
	Password    string
}

// Config configures the Validator. Auth is disabled (every credential
// passes) when none of StaticToken, JWTSecret or Username is set.
type Config struct {
	StaticToken   string // opaque bearer/API-key token, compared constant-time
	JWTSecret     string // when set, bearer tokens are verified as HS256 JWTs first
	Username      string
	Password      string // cleartext; ignored if PasswordHash is set
	PasswordHash  string // bcrypt hash; takes precedence over Password
	ExemptPaths   []string
}

// Validator checks credentials in constant time.
type Validator struct {
	enabled      bool
	staticToken  []byte
	jwtSecret    []byte
	username     string
	password     []byte
	passwordHash string
	exempt       map[string]bool
}

// New builds a Validator from cfg.
func New(cfg Config) *Validator {
	exempt := map[string]bool{
		"/health":  true,
		"/metrics": true,
	}
	for _, p := range cfg.ExemptPaths {
		exempt[p] = true
	}

	return &Validator{
		enabled:      cfg.StaticToken != "" || cfg.JWTSecret != "" || cfg.Username != "",
		staticToken:  []byte(cfg.StaticToken),
		jwtSecret:    []byte(cfg.JWTSecret),
		username:     cfg.Username,
		password:     []byte(cfg.Password),
		passwordHash: cfg.PasswordHash,
		exempt:       exempt,
	}
}

// Enabled reports whether any credential has been configured.
func (v *Validator) Enabled() bool { return v.enabled }

// IsExempt reports whether path bypasses authentication (spec §4.6: the
// static UI root is also exempt; since that root is configurable per
// deployment, the service state adds it to ExemptPaths from its config).
func (v *Validator) IsExempt(path string) bool { return v.exempt[path] }

// Verify checks cred in constant time. Returns *errors.ServiceError(unauthorized)
// on any mismatch.
func (v *Validator) Verify(cred Credential) error {
	if !v.enabled {
		return nil
	}

	if cred.BearerToken != "" {
		if len(v.jwtSecret) > 0 {
			if err := v.verifyJWT(cred.BearerToken); err == nil {
				return nil
			}
			// fall through to opaque-token comparison so a deployment can
			// rotate between JWT and static-token auth without downtime
		}
		if v.constantTimeEqual(cred.BearerToken, v.staticToken) {
			return nil
		}
		return svcerrors.Unauthorized("invalid bearer token")
	}

	if cred.APIKey != "" {
		if v.constantTimeEqual(cred.APIKey, v.staticToken) {
			return nil
		}
		return svcerrors.Unauthorized("invalid API key")
	}

	if cred.Username != "" {
		if subtle.ConstantTimeCompare([]byte(cred.Username), []byte(v.username)) != 1 {
			// still run a password comparison of equal cost to avoid a
			// username-based timing oracle
			_ = v.comparePassword(cred.Password)
			return svcerrors.Unauthorized("invalid credentials")
		}
		if !v.comparePassword(cred.Password) {
			return svcerrors.Unauthorized("invalid credentials")
		}
		return nil
	}

	return svcerrors.Unauthorized("no credentials supplied")
}

func (v *Validator) comparePassword(candidate string) bool {
	if v.passwordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(v.passwordHash), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(candidate), v.password) == 1
}

func (v *Validator) constantTimeEqual(candidate string, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), expected) == 1
}

func (v *Validator) verifyJWT(token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return svcerrors.Unauthorized("invalid token")
	}
	return nil
}

// FromHTTPRequest extracts a Credential from the conventional headers
// described in spec.md §4.6.
func FromHTTPRequest(r *http.Request) Credential {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return Credential{BearerToken: strings.TrimPrefix(h, "Bearer ")}
	}
	if u, p, ok := r.BasicAuth(); ok {
		return Credential{Username: u, Password: p}
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return Credential{APIKey: k}
	}
	return Credential{}
}

// IssueJWT mints an HS256 JWT for the configured secret, used by
// administrative tooling/tests rather than any public endpoint.
func IssueJWT(secret string, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
