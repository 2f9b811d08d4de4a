package registry

import (
	"regexp"
	"strings"
)

// ModelIDNormalizer holds the string transforms the resolver applies to requested model IDs.
type ModelIDNormalizer struct {
	variants []string
}

// DefaultVariantSuffixes are non-semantic suffixes clients append to model IDs.
var DefaultVariantSuffixes = []string{"[1m]", "-1m", "-fast", "-thinking", "-latest"}

func NewModelIDNormalizer(variants []string) *ModelIDNormalizer {
	if len(variants) == 0 {
		variants = DefaultVariantSuffixes
	}
	return &ModelIDNormalizer{variants: variants}
}

// NormalizeModelID trims whitespace and a "[Provider] " display prefix.
func (n *ModelIDNormalizer) NormalizeModelID(modelID string) string {
	modelID = strings.TrimSpace(modelID)
	if strings.HasPrefix(modelID, "[") {
		if idx := strings.Index(modelID, "] "); idx != -1 {
			return strings.TrimSpace(modelID[idx+2:])
		}
	}
	return modelID
}

// versionDashes matches the first two version components at the start of the
// text following a family prefix, e.g. "4-5" in "4-5-20250929".
var versionDashes = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})(-|$)`)

// DashToDot converts "family-4-5" to "family-4.5". Only the two version
// components directly after family are touched.
func (n *ModelIDNormalizer) DashToDot(modelID, family string) string {
	if family == "" || !strings.HasPrefix(modelID, family+"-") {
		return modelID
	}
	rest := modelID[len(family)+1:]
	converted := versionDashes.ReplaceAllString(rest, "$1.$2$3")
	if converted == rest {
		return modelID
	}
	return modelID[:len(family)+1] + converted
}

var dateSuffix = regexp.MustCompile(`-\d{8}$`)

// StripDateSuffix removes a trailing -YYYYMMDD.
func (n *ModelIDNormalizer) StripDateSuffix(modelID string) string {
	return dateSuffix.ReplaceAllString(modelID, "")
}

// StripVariantSuffixes removes known variant suffixes until none remain.
func (n *ModelIDNormalizer) StripVariantSuffixes(modelID string) string {
	for {
		stripped := false
		for _, suffix := range n.variants {
			if len(modelID) > len(suffix) && strings.HasSuffix(strings.ToLower(modelID), suffix) {
				modelID = modelID[:len(modelID)-len(suffix)]
				stripped = true
			}
		}
		if !stripped {
			return modelID
		}
	}
}
