package domain

import (
	"fmt"
	"strings"
)

// ModuleKind identifies an independently deployed module frontend.
type ModuleKind string

const (
	ModuleKindPolicy       ModuleKind = "policy"
	ModuleKindQuickActions ModuleKind = "quick-actions"
	ModuleKindKPI          ModuleKind = "kpi"
)

var knownModuleKinds = []ModuleKind{
	ModuleKindPolicy,
	ModuleKindQuickActions,
	ModuleKindKPI,
}

// KnownModuleKinds returns the closed set of module kinds the dashboard can embed.
func KnownModuleKinds() []ModuleKind {
	out := make([]ModuleKind, len(knownModuleKinds))
	copy(out, knownModuleKinds)
	return out
}

func (k ModuleKind) IsValid() bool {
	for _, known := range knownModuleKinds {
		if k == known {
			return true
		}
	}
	return false
}

func ParseModuleKind(s string) (ModuleKind, error) {
	k := ModuleKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown module kind %q", s)
	}
	return k, nil
}

// Environment is the deployment environment a dashboard runs in.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

func (e Environment) IsValid() bool {
	return e == EnvironmentDevelopment || e == EnvironmentProduction
}

func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return EnvironmentDevelopment, nil
	case "production", "prod":
		return EnvironmentProduction, nil
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// ModuleEndpoint is the resolved base URL a module kind is loaded from.
type ModuleEndpoint struct {
	Kind   ModuleKind `json:"module_kind"`
	URL    string     `json:"url"`
	Origin string     `json:"origin"`
}
