package registry

import (
	"sort"
	"strings"
	"sync/atomic"

	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/metrics"
)

// Tier names the resolution step that produced a model ID.
type Tier string

const (
	TierExact       Tier = "exact"
	TierAlias       Tier = "alias"
	TierDashToDot   Tier = "dash_to_dot"
	TierDateSuffix  Tier = "date_suffix"
	TierVariant     Tier = "variant_suffix"
	TierPrefix      Tier = "longest_prefix"
	TierFamily      Tier = "family_default"
	TierPassthrough Tier = "passthrough"
)

// DefaultFamilies maps family prefixes to their flagship model.
var DefaultFamilies = map[string]string{
	"claude-opus":   "claude-opus-4.5",
	"claude-sonnet": "claude-sonnet-4.5",
	"claude-haiku":  "claude-haiku-4.5",
	"claude":        "claude-sonnet-4.5",
}

// ResolverOptions configures a Resolver. Nil Families selects DefaultFamilies.
type ResolverOptions struct {
	Aliases         map[string]string
	Families        map[string]string
	VariantSuffixes []string
}

// Resolution is the outcome of resolving one requested model.
type Resolution struct {
	Model string
	Tier  Tier
}

type family struct {
	prefix   string
	flagship string
}

type resolverConfig struct {
	aliases    map[string]string
	families   []family
	normalizer *ModelIDNormalizer
}

// Resolver maps client-requested model IDs onto a catalog snapshot.
// It holds no catalog itself; every call receives the snapshot to resolve against.
type Resolver struct {
	cfg atomic.Pointer[resolverConfig]
}

func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{}
	r.Update(opts)
	return r
}

// Update swaps aliases and families. In-flight resolutions finish with the old set.
func (r *Resolver) Update(opts ResolverOptions) {
	families := opts.Families
	if families == nil {
		families = DefaultFamilies
	}
	cfg := &resolverConfig{
		aliases:    make(map[string]string, len(opts.Aliases)),
		families:   make([]family, 0, len(families)),
		normalizer: NewModelIDNormalizer(opts.VariantSuffixes),
	}
	for alias, target := range opts.Aliases {
		alias, target = strings.ToLower(strings.TrimSpace(alias)), strings.TrimSpace(target)
		if alias != "" && target != "" {
			cfg.aliases[alias] = target
		}
	}
	for prefix, flagship := range families {
		prefix = strings.ToLower(strings.TrimSpace(prefix))
		if prefix != "" && flagship != "" {
			cfg.families = append(cfg.families, family{prefix: prefix, flagship: flagship})
		}
	}
	// Longest prefix first so "claude-opus" wins over "claude".
	sort.Slice(cfg.families, func(i, j int) bool {
		if len(cfg.families[i].prefix) != len(cfg.families[j].prefix) {
			return len(cfg.families[i].prefix) > len(cfg.families[j].prefix)
		}
		return cfg.families[i].prefix < cfg.families[j].prefix
	})
	r.cfg.Store(cfg)
}

// Resolve returns the model ID to send upstream for requested.
func (r *Resolver) Resolve(requested string, catalog *Catalog) string {
	return r.ResolveDetailed(requested, catalog).Model
}

// ResolveDetailed is Resolve plus the tier that matched.
func (r *Resolver) ResolveDetailed(requested string, catalog *Catalog) Resolution {
	res := r.resolve(requested, catalog)
	metrics.ModelResolutionsTotal.WithLabelValues(string(res.Tier)).Inc()
	if res.Tier != TierExact {
		log.Infof("registry: resolved model %q -> %q (%s)", requested, res.Model, res.Tier)
	}
	return res
}

func (r *Resolver) resolve(requested string, catalog *Catalog) Resolution {
	cfg := r.cfg.Load()
	n := cfg.normalizer

	name := n.NormalizeModelID(requested)
	if name == "" {
		return Resolution{Model: requested, Tier: TierPassthrough}
	}

	hit := TierExact
	if target, ok := cfg.aliases[strings.ToLower(name)]; ok {
		name = target
		hit = TierAlias
	}
	if id, ok := catalog.lookup(name); ok {
		return Resolution{Model: id, Tier: hit}
	}

	working := strings.ToLower(name)
	fam, hasFamily := cfg.family(working)

	if hasFamily {
		if dotted := n.DashToDot(working, fam.prefix); dotted != working {
			working = dotted
			if id, ok := catalog.lookup(working); ok {
				return Resolution{Model: id, Tier: TierDashToDot}
			}
		}
	}

	if undated := n.StripDateSuffix(working); undated != working {
		working = undated
		if id, ok := catalog.lookup(working); ok {
			return Resolution{Model: id, Tier: TierDateSuffix}
		}
	}

	if plain := n.StripVariantSuffixes(working); plain != working {
		plain = n.StripDateSuffix(plain)
		if hasFamily {
			plain = n.DashToDot(plain, fam.prefix)
		}
		working = plain
		if id, ok := catalog.lookup(working); ok {
			return Resolution{Model: id, Tier: TierVariant}
		}
	}

	if id, ok := catalog.longestPrefix(working); ok {
		return Resolution{Model: id, Tier: TierPrefix}
	}

	if hasFamily {
		return Resolution{Model: fam.flagship, Tier: TierFamily}
	}

	if hit == TierAlias {
		return Resolution{Model: name, Tier: TierAlias}
	}
	return Resolution{Model: requested, Tier: TierPassthrough}
}

func (c *resolverConfig) family(model string) (family, bool) {
	for _, f := range c.families {
		if model == f.prefix || strings.HasPrefix(model, f.prefix+"-") {
			return f, true
		}
	}
	return family{}, false
}
