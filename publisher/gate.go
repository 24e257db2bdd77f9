package publisher

import (
	"os"
	"strings"
)

// Credential lookup keys, one per sink that talks to a remote API.
const (
	YouTubeTokenKey = "YOUTUBE_API_KEY"
	HeyGenTokenKey  = "HEYGEN_API_KEY"
	BufferTokenKey  = "BUFFER_ACCESS_TOKEN"
	// SiteURLKey overrides the configured public base URL of the site.
	SiteURLKey = "SITE_URL"
)

// Mode is the execution strategy chosen for one sink call.
type Mode string

const (
	// ModeSimulated performs no network or version-control side effects.
	ModeSimulated Mode = "simulated"
	// ModeLive performs the real remote operation.
	ModeLive Mode = "live"
)

// Credentials resolves secrets by key. Implementations are consulted on every
// sink call, so changes between calls take effect immediately.
type Credentials interface {
	Lookup(key string) (string, bool)
}

// CredentialsFunc adapts a lookup function to Credentials.
type CredentialsFunc func(key string) (string, bool)

func (f CredentialsFunc) Lookup(key string) (string, bool) { return f(key) }

// StaticCredentials is a fixed key/value set, mostly useful in tests.
type StaticCredentials map[string]string

func (s StaticCredentials) Lookup(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// Environment reads credentials from the process environment.
var Environment Credentials = CredentialsFunc(os.LookupEnv)

// Decision is the outcome of the credential gate for one call.
type Decision struct {
	Mode  Mode
	Token string
}

// Live reports whether the call should reach the remote system.
func (d Decision) Live() bool { return d.Mode == ModeLive }

// Decide picks the mode for a sink call: simulated when dryRun is set or the
// credential stored under key is absent or blank, live otherwise. An empty
// key means the sink needs no credential and only dryRun matters.
func Decide(creds Credentials, key string, dryRun bool) Decision {
	if dryRun {
		return Decision{Mode: ModeSimulated}
	}
	if key == "" {
		return Decision{Mode: ModeLive}
	}
	token, ok := lookupCredential(creds, key)
	if !ok {
		return Decision{Mode: ModeSimulated}
	}
	return Decision{Mode: ModeLive, Token: token}
}

// lookupCredential returns the trimmed value under key; blank counts as absent.
func lookupCredential(creds Credentials, key string) (string, bool) {
	if creds == nil {
		return "", false
	}
	v, ok := creds.Lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
