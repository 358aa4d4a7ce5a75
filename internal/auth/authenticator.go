// Package auth verifies HMAC-SHA256 signatures on incoming webhook bodies.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/netip"
	"slices"
	"strings"

	"github.com/chainhook/forwarder/internal/constants"
)

// Result records the outcome of an authentication attempt.
type Result struct {
	// Authenticated is true if the request carried a signature that verified
	// against a known secret, if authentication is disabled, or if no secret
	// is configured for the provider.
	Authenticated bool
	// FailureReason is a short, log-safe description of why authentication
	// failed. It is empty on a verified or disabled-auth success, and set to a
	// note on the no-secret fail-open success.
	FailureReason string
}

// SecretLookup resolves the shared secret for a provider. It returns ok=false
// if no secret is configured for that provider.
type SecretLookup func(provider string) (secret string, ok bool)

// Authenticator verifies the signature header on an incoming request body,
// plus an optional source-address allowlist. It fails open: if
// authentication is disabled, or no secret is configured for the provider,
// the request is treated as authenticated. This matches providers (like
// Alchemy) that sign callbacks but don't require it. The allowlist only
// gates requests when authentication is enabled: disabled always returns
// authenticated=true with nothing else checked.
type Authenticator struct {
	enabled   bool
	secrets   SecretLookup
	allowlist []netip.Addr
}

// New returns an Authenticator. When enabled is false, Verify always
// succeeds and the allowlist is never consulted.
func New(enabled bool, secrets SecretLookup, allowlist []netip.Addr) *Authenticator {
	return &Authenticator{enabled: enabled, secrets: secrets, allowlist: allowlist}
}

// Verify checks the signature carried in header against an HMAC-SHA256
// digest of body, keyed with the secret configured for provider, then checks
// sourceAddr against the allowlist. sourceAddr may be the zero value when the
// peer address could not be determined.
func (a *Authenticator) Verify(provider string, header http.Header, body []byte, sourceAddr netip.Addr) Result {
	if !a.enabled {
		return Result{Authenticated: true}
	}

	secret, ok := a.secrets(provider)
	if !ok || secret == "" {
		return Result{Authenticated: true, FailureReason: "no secret configured, allowing"}
	}

	signature := extractSignature(header)
	if signature == "" {
		return Result{Authenticated: false, FailureReason: "Missing signature"}
	}

	want, err := hex.DecodeString(signature)
	if err != nil {
		return Result{Authenticated: false, FailureReason: "Invalid signature"}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	got := mac.Sum(nil)

	if !hmac.Equal(want, got) {
		return Result{Authenticated: false, FailureReason: "Invalid signature"}
	}

	if len(a.allowlist) > 0 && sourceAddr.IsValid() && !slices.Contains(a.allowlist, sourceAddr) {
		return Result{Authenticated: false, FailureReason: "IP not allowed"}
	}

	return Result{Authenticated: true}
}

// extractSignature reads the signature from whichever header the caller
// populated, first present among X-Alchemy-Signature, X-Signature, and
// X-Hub-Signature-256, stripping a leading "sha256=" prefix (case-insensitive)
// and surrounding whitespace.
func extractSignature(header http.Header) string {
	raw := header.Get(constants.AlchemySignatureHeader)
	if raw == "" {
		raw = header.Get(constants.SignatureHeader)
	}
	if raw == "" {
		raw = header.Get(constants.HubSignatureHeader)
	}
	raw = strings.TrimSpace(raw)
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "sha256=") {
		raw = raw[7:]
	}
	return strings.TrimSpace(raw)
}
