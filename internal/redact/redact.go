// Package redact keeps secrets out of logs and the debug timeline.
// Token values and full URLs are never logged anywhere in this module;
// every call site that would otherwise log one routes through here.
package redact

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a short, stable, non-reversible identifier for a
// secret (a bearer token) suitable for log correlation without ever
// exposing the secret itself.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}

// URL strips everything but the scheme and host from a URL so a log
// line can say "connecting to wss://bridge.example" without leaking a
// path, query, or embedded credential.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<redacted-url>"
	}
	return u.Scheme + "://" + u.Hostname()
}

var bearerLike = regexp.MustCompile(`(?i)(token|bearer)[\s=:]+\S+`)

var urlLike = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.-]*://\S+`)

// Scrub removes anything that looks like a token assignment or a
// fingerprinted secret from a free-form summary string before it is
// written to the debug timeline, and cuts every URL down to its scheme
// and host (see URL). secrets, if non-empty, is the
// set of known raw token values to scrub verbatim in addition to the
// heuristic pattern match.
func Scrub(summary string, secrets ...string) string {
	out := summary
	for _, s := range secrets {
		if s == "" {
			continue
		}
		out = strings.ReplaceAll(out, s, "<redacted:"+Fingerprint(s)+">")
	}
	out = urlLike.ReplaceAllStringFunc(out, URL)
	out = bearerLike.ReplaceAllString(out, "<redacted-token>")
	return out
}
