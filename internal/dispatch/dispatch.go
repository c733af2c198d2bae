// Package dispatch routes a verification type to its source handler.
package dispatch

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/handler"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/pkg/nsopw"
)

// Route resolves a type to a source id, possibly using the query.
type Route func(r *Router, verificationType string, q model.VerificationQuery) (string, bool)

// source routes to a fixed source id.
func source(id string) Route {
	return func(r *Router, _ string, _ model.VerificationQuery) (string, bool) {
		return id, true
	}
}

// jurisdiction routes to the family member serving a state.
func jurisdiction(family catalog.Family, state func(string, model.VerificationQuery) string) Route {
	return func(r *Router, t string, q model.VerificationQuery) (string, bool) {
		src, ok := r.registry.ForJurisdiction(family, state(t, q))
		return src.ID, ok
	}
}

func suffix(prefix string) func(string, model.VerificationQuery) string {
	return func(t string, _ model.VerificationQuery) string {
		return strings.TrimPrefix(t, prefix)
	}
}

func licenseState(_ string, q model.VerificationQuery) string { return q.LicenseState }

// exact and prefixes form the routing table.
var (
	exact = map[string]Route{
		"oig":        source("oig"),
		"sam":        source("sam"),
		"ofac":       source("ofac"),
		"fbi_wanted": source("fbi_wanted"),
		"criminal":   source("fbi_wanted"),
		"nsopw":      source("nsopw"),
		"license":    jurisdiction(catalog.LicenseRegistry, licenseState),
	}
	prefixes = []struct {
		prefix string
		route  Route
	}{
		{"medicaid_", jurisdiction(catalog.StateMedicaid, suffix("medicaid_"))},
		{"license_", jurisdiction(catalog.LicenseRegistry, suffix("license_"))},
	}
)

// Options configures a Router.
type Options struct {
	Registry *catalog.Registry
	Indexes  handler.Indexes
	Rules    match.Rules
	// Live is the client for live registries. Without it live sources
	// resolve to the unsupported handler.
	Live     nsopw.Client
	LiveOpts handler.LiveOptions
}

// Router holds one handler per enabled source, built at construction.
type Router struct {
	registry *catalog.Registry
	handlers map[string]handler.Handler
}

// New builds handlers for every enabled source.
func New(opts Options) *Router {
	r := &Router{registry: opts.Registry, handlers: make(map[string]handler.Handler)}
	rules := opts.Rules.WithDefaults()
	log := zap.L().With(zap.String("component", "dispatch"))

	for _, src := range opts.Registry.Enabled() {
		var h handler.Handler
		switch {
		case src.Live():
			if opts.Live == nil {
				log.Warn("live source has no client, skipping", zap.String("source", src.ID))
				continue
			}
			h = handler.NewLive(src, opts.Live, rules, opts.LiveOpts)
		case src.Family == catalog.LicenseRegistry:
			h = handler.NewLicense(src, opts.Indexes, rules)
		case src.Family == catalog.CriminalRegistry:
			h = handler.NewCriminal(src, opts.Indexes, rules)
		default:
			h = handler.NewExclusion(src, opts.Indexes, rules)
		}
		r.handlers[src.ID] = h
	}
	return r
}

// Normalize canonicalizes a verification type identifier.
func Normalize(verificationType string) string {
	return strings.ToLower(strings.TrimSpace(verificationType))
}

// Resolve returns the handler for a type. Unknown types, and known
// families without a configured jurisdiction, get the unsupported handler.
func (r *Router) Resolve(verificationType string, q model.VerificationQuery) handler.Handler {
	t := Normalize(verificationType)
	if id, ok := r.route(t, q); ok {
		if h, ok := r.handlers[id]; ok {
			return h
		}
	}
	return handler.Unsupported{Type: t}
}

func (r *Router) route(t string, q model.VerificationQuery) (string, bool) {
	if route, ok := exact[t]; ok {
		return route(r, t, q)
	}
	for _, p := range prefixes {
		if strings.HasPrefix(t, p.prefix) && len(t) > len(p.prefix) {
			return p.route(r, t, q)
		}
	}
	// Sources added through catalog overrides are addressable by id.
	if _, ok := r.handlers[t]; ok {
		return t, true
	}
	return "", false
}

// Types lists the concrete verification types currently served.
func (r *Router) Types() []string {
	var out []string
	for _, src := range r.registry.Enabled() {
		if _, ok := r.handlers[src.ID]; ok {
			out = append(out, src.ID)
		}
	}
	return out
}
