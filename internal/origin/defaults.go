package origin

import "github.com/Harshitk-cp/switchboard/internal/domain"

// Table maps a module kind and environment to the base URL the module is served from.
type Table map[domain.ModuleKind]map[domain.Environment]string

var defaultTable = Table{
	domain.ModuleKindPolicy: {
		domain.EnvironmentDevelopment: "http://localhost:3001",
		domain.EnvironmentProduction:  "https://policy.campaigns.example",
	},
	domain.ModuleKindQuickActions: {
		domain.EnvironmentDevelopment: "http://localhost:3002",
		domain.EnvironmentProduction:  "https://quick-actions.campaigns.example",
	},
	domain.ModuleKindKPI: {
		domain.EnvironmentDevelopment: "http://localhost:3003",
		domain.EnvironmentProduction:  "https://kpi.campaigns.example",
	},
}

// DefaultTable returns a copy of the compiled-in origin table.
func DefaultTable() Table {
	return defaultTable.clone()
}

func (t Table) clone() Table {
	out := make(Table, len(t))
	for kind, byEnv := range t {
		inner := make(map[domain.Environment]string, len(byEnv))
		for env, u := range byEnv {
			inner[env] = u
		}
		out[kind] = inner
	}
	return out
}
