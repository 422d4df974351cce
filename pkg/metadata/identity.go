package metadata

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// Identity is the display identity of a module, e.g.
//
//	Terraria, Version=1.3.0.7, Culture=neutral, PublicKeyToken=null
//
// Identities compare field by field on the exact strings, so 1.3 and 1.3.0 are
// different versions of a module as far as patch targeting is concerned.
type Identity struct {
	Name           string
	Version        string
	Culture        string
	PublicKeyToken string // empty means null
}

// ParseIdentity parses a module display name. Version is required and must be
// a well formed dotted version; Culture defaults to neutral.
func ParseIdentity(s string) (Identity, error) {
	parts := strings.Split(s, ",")
	id := Identity{Name: strings.TrimSpace(parts[0]), Culture: "neutral"}
	if id.Name == "" {
		return Identity{}, fmt.Errorf("identity %q: missing module name", s)
	}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Identity{}, fmt.Errorf("identity %q: malformed attribute %q", s, part)
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "version":
			id.Version = value
		case "culture":
			id.Culture = value
		case "publickeytoken":
			if !strings.EqualFold(value, "null") {
				id.PublicKeyToken = strings.ToLower(value)
			}
		default:
			return Identity{}, fmt.Errorf("identity %q: unknown attribute %q", s, key)
		}
	}
	if id.Version == "" {
		return Identity{}, fmt.Errorf("identity %q: missing Version", s)
	}
	if _, err := version.NewVersion(id.Version); err != nil {
		return Identity{}, fmt.Errorf("identity %q: %w", s, err)
	}
	return id, nil
}

// MustParseIdentity is ParseIdentity for identities known at compile time.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identity) String() string {
	token := id.PublicKeyToken
	if token == "" {
		token = "null"
	}
	return fmt.Sprintf("%s, Version=%s, Culture=%s, PublicKeyToken=%s", id.Name, id.Version, id.Culture, token)
}

// In reports whether id exactly matches one of set.
func (id Identity) In(set []Identity) bool {
	return slices.Contains(set, id)
}

// SemVer returns the parsed version, for ordering identities.
func (id Identity) SemVer() (*version.Version, error) {
	return version.NewVersion(id.Version)
}

// CompareIdentities orders identities by name, then by version.
func CompareIdentities(a, b Identity) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	va, errA := a.SemVer()
	vb, errB := b.SemVer()
	if errA != nil || errB != nil {
		return strings.Compare(a.Version, b.Version)
	}
	return va.Compare(vb)
}

func (id Identity) MarshalYAML() (any, error) {
	return id.String(), nil
}

func (id *Identity) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	parsed, err := ParseIdentity(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*id = parsed
	return nil
}
