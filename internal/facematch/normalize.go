package facematch

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// NamedIdentity is a key with its display name, as listed by a student directory.
type NamedIdentity struct {
	Key  string
	Name string
}

// NameResolver maps legacy display names to stable identity keys.
type NameResolver struct {
	byName map[string][]string
}

// NewNameResolver indexes identities by normalized display name.
func NewNameResolver(identities []NamedIdentity) *NameResolver {
	r := &NameResolver{byName: make(map[string][]string, len(identities))}
	for _, id := range identities {
		name := normalizeForLookup(id.Name)
		if name == "" {
			continue
		}
		r.byName[name] = append(r.byName[name], id.Key)
	}
	return r
}

// Resolve returns the identity key for a display name.
// ok is false when no identity carries the name. Several identities sharing the
// name fail with ErrAmbiguousName.
func (r *NameResolver) Resolve(name string) (key string, ok bool, err error) {
	keys := r.byName[normalizeForLookup(name)]
	switch len(keys) {
	case 0:
		return "", false, nil
	case 1:
		return keys[0], true, nil
	default:
		return "", false, fmt.Errorf("%w: %q matches %s", ErrAmbiguousName, name, strings.Join(keys, ", "))
	}
}

// ParseLegacyEncodingName splits a legacy "<ID>_<Name>_encoding" file stem into its
// key and display name. Names may contain underscores.
func ParseLegacyEncodingName(stem string) (key, name string, ok bool) {
	stem = strings.TrimSuffix(stem, "_encoding")
	key, name, found := strings.Cut(stem, "_")
	if !found || key == "" || name == "" {
		return "", "", false
	}
	return key, strings.ReplaceAll(name, "_", " "), true
}

func normalizeForLookup(name string) string {
	return strings.Join(strings.Fields(NormalizePersonName(name)), " ")
}
