// Package origin resolves the base URL each embedded module is served from and
// derives the set of origins a dashboard session accepts frame messages from.
package origin

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Harshitk-cp/switchboard/internal/domain"
)

// Snapshot is the origin configuration loaded once at startup.
// Overrides apply per deployment and win over Defaults in every environment.
type Snapshot struct {
	Defaults  Table
	Overrides map[domain.ModuleKind]string
}

// Resolver answers origin lookups from an immutable Snapshot.
type Resolver struct {
	defaults  Table
	overrides map[domain.ModuleKind]string
}

// NewResolver copies snap and checks that every required kind resolves in
// both environments. Any miss or malformed URL is returned as a *ConfigurationError.
func NewResolver(snap Snapshot, required ...domain.ModuleKind) (*Resolver, error) {
	r := &Resolver{
		defaults:  Table{},
		overrides: make(map[domain.ModuleKind]string, len(snap.Overrides)),
	}
	if snap.Defaults != nil {
		r.defaults = snap.Defaults.clone()
	}

	for kind, raw := range snap.Overrides {
		u := normalize(raw)
		if u == "" {
			continue
		}
		if _, err := OriginOf(u); err != nil {
			return nil, &ConfigurationError{Key: OverrideEnvKey(kind), Reason: err.Error()}
		}
		r.overrides[kind] = u
	}

	for kind, byEnv := range r.defaults {
		for env, raw := range byEnv {
			u := normalize(raw)
			if _, err := OriginOf(u); err != nil {
				return nil, &ConfigurationError{Key: defaultKey(kind, env), Reason: err.Error()}
			}
			byEnv[env] = u
		}
	}

	for _, kind := range required {
		for _, env := range []domain.Environment{domain.EnvironmentDevelopment, domain.EnvironmentProduction} {
			if _, err := r.Resolve(kind, env, ""); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Resolve returns the base URL for kind in env. The tenant is accepted so
// tenant-specific overrides can be added without changing callers; today
// every tenant shares one service per module kind.
func (r *Resolver) Resolve(kind domain.ModuleKind, env domain.Environment, tenant string) (string, error) {
	if u, ok := r.overrides[kind]; ok {
		return u, nil
	}
	if u := r.defaults[kind][env]; u != "" {
		return u, nil
	}
	if _, ok := r.defaults[kind]; !ok {
		return "", &ConfigurationError{Key: OverrideEnvKey(kind)}
	}
	return "", &ConfigurationError{Key: defaultKey(kind, env)}
}

// Endpoints resolves every kind for tenant in env.
func (r *Resolver) Endpoints(tenant string, env domain.Environment, kinds []domain.ModuleKind) ([]domain.ModuleEndpoint, error) {
	out := make([]domain.ModuleEndpoint, 0, len(kinds))
	for _, kind := range kinds {
		u, err := r.Resolve(kind, env, tenant)
		if err != nil {
			return nil, err
		}
		o, err := OriginOf(u)
		if err != nil {
			return nil, &ConfigurationError{Key: OverrideEnvKey(kind), Reason: err.Error()}
		}
		out = append(out, domain.ModuleEndpoint{Kind: kind, URL: u, Origin: o})
	}
	return out, nil
}

// AllowedOrigins returns the deduplicated, sorted origins of kinds for tenant.
func (r *Resolver) AllowedOrigins(tenant string, env domain.Environment, kinds []domain.ModuleKind) ([]string, error) {
	endpoints, err := r.Endpoints(tenant, env, kinds)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(endpoints))
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		if _, dup := seen[ep.Origin]; dup {
			continue
		}
		seen[ep.Origin] = struct{}{}
		out = append(out, ep.Origin)
	}
	sort.Strings(out)
	return out, nil
}

// OriginOf reduces a base URL to scheme://host[:port] the way browsers
// serialize the Origin header: lower-case host, default port omitted,
// IPv6 literals bracketed.
func OriginOf(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme in %q", raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if port == "" || port == defaultPorts[scheme] {
		return scheme + "://" + host, nil
	}
	return scheme + "://" + host + ":" + port, nil
}

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// OverrideEnvKey is the environment variable that overrides kind's origin,
// e.g. POLICY_SERVICE_URL for "policy".
func OverrideEnvKey(kind domain.ModuleKind) string {
	key := strings.ToUpper(strings.ReplaceAll(string(kind), "-", "_"))
	return key + "_SERVICE_URL"
}

func defaultKey(kind domain.ModuleKind, env domain.Environment) string {
	return fmt.Sprintf("defaults[%s][%s]", kind, env)
}

func normalize(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
