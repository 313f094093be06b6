package host

import (
	"fmt"
	"path"
	"strings"

	"solmove/internal/identity"
)

// DescriptorKind tells how a reference identifies its target.
type DescriptorKind string

const (
	// KindStrong identifies an assembly by name, version, culture and public key token.
	KindStrong DescriptorKind = "strong"
	// KindPath identifies a project or assembly by a simple path.
	KindPath DescriptorKind = "path"
)

// NeutralCulture is rendered when a strong reference has no culture.
const NeutralCulture = "neutral"

// Descriptor is a reference edge as seen on its holder.
type Descriptor struct {
	Kind DescriptorKind `json:"kind" yaml:"kind"`

	// Identity is the referenced identity as reported by the host.
	Identity identity.Identity `json:"identity" yaml:"identity"`
	// Name is the display name of the reference; hosts may set it to a
	// different spelling of the same logical dependency.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Version        string `json:"version,omitempty" yaml:"version,omitempty"`
	Culture        string `json:"culture,omitempty" yaml:"culture,omitempty"`
	PublicKeyToken string `json:"publicKeyToken,omitempty" yaml:"publicKeyToken,omitempty"`

	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// StrongDescriptor builds a strong-identity descriptor.
func StrongDescriptor(name, version, culture, publicKeyToken string) Descriptor {
	return Descriptor{
		Kind:           KindStrong,
		Identity:       identity.Identity(name),
		Name:           name,
		Version:        version,
		Culture:        culture,
		PublicKeyToken: publicKeyToken,
	}
}

// PathDescriptor builds a simple-path descriptor. When name is empty it is
// derived from the file name without extension.
func PathDescriptor(p, name string) Descriptor {
	if name == "" {
		name = NameFromPath(p)
	}
	return Descriptor{
		Kind:     KindPath,
		Identity: identity.Identity(name),
		Name:     name,
		Path:     p,
	}
}

// NameFromPath returns the base file name of p without its extension.
// Both slash styles are accepted.
func NameFromPath(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Matches reports whether the descriptor points at id, by identity or by name.
func (d Descriptor) Matches(id identity.Identity) bool {
	if id.IsZero() {
		return false
	}
	return d.Identity == id || identity.Identity(d.Name) == id
}

// Keys returns the distinct identities the descriptor can be found under.
func (d Descriptor) Keys() []identity.Identity {
	keys := make([]identity.Identity, 0, 2)
	if !d.Identity.IsZero() {
		keys = append(keys, d.Identity)
	}
	if n := identity.Identity(d.Name); !n.IsZero() && n != d.Identity {
		keys = append(keys, n)
	}
	return keys
}

// String renders the descriptor the way the holder records it: the full
// strong-name tuple, or the path.
func (d Descriptor) String() string {
	if d.Kind == KindStrong {
		culture := d.Culture
		if culture == "" {
			culture = NeutralCulture
		}
		name := d.Name
		if name == "" {
			name = d.Identity.String()
		}
		return fmt.Sprintf("%s, Version=%s, Culture=%s, PublicKeyToken=%s", name, d.Version, culture, d.PublicKeyToken)
	}
	return d.Path
}

// ParseStrongName parses "Name, Version=x, Culture=y, PublicKeyToken=z".
// ok is false when the string carries no public key token, which means the
// assembly is not strong-named.
func ParseStrongName(s string) (Descriptor, bool) {
	parts := strings.Split(s, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return Descriptor{}, false
	}
	var version, culture, token string
	for _, part := range parts[1:] {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "version":
			version = strings.TrimSpace(v)
		case "culture":
			culture = strings.TrimSpace(v)
		case "publickeytoken":
			token = strings.TrimSpace(v)
		}
	}
	if token == "" || strings.EqualFold(token, "null") {
		return Descriptor{}, false
	}
	if strings.EqualFold(culture, NeutralCulture) {
		culture = ""
	}
	return StrongDescriptor(name, version, culture, token), true
}
