package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/forest6511/simplepm/pkg/vault"
)

// PathSeparator joins group names in a group path.
const PathSeparator = "/"

// ResolveGroup finds a group by UUID or by its slash-separated path of names
// below the root. An empty path or "/" selects the root.
func ResolveGroup(root vault.GroupData, selector string) (vault.GroupData, error) {
	if _, err := uuid.Parse(selector); err == nil {
		if g, ok := root.Find(strings.ToLower(selector)); ok {
			return g, nil
		}
		return vault.GroupData{}, fmt.Errorf("%w: %s", vault.ErrGroupNotFound, selector)
	}

	g := root
	for _, name := range splitPath(selector) {
		var next []vault.GroupData
		for _, c := range g.Children {
			if c.Name == name {
				next = append(next, c)
			}
		}
		switch len(next) {
		case 0:
			return vault.GroupData{}, fmt.Errorf("%w: '%s'", vault.ErrGroupNotFound, selector)
		case 1:
			g = next[0]
		default:
			return vault.GroupData{}, fmt.Errorf("%w: several groups named '%s', use the UUID", ErrAmbiguous, name)
		}
	}
	return g, nil
}

// SplitParent splits a group path into its parent path and last name.
func SplitParent(p string) (parent, name string) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return "", ""
	}
	return strings.Join(parts[:len(parts)-1], PathSeparator), parts[len(parts)-1]
}

// GroupPaths maps every group below the root to its path. The root maps
// to "/".
func GroupPaths(root vault.GroupData) map[string]string {
	out := map[string]string{root.UUID: PathSeparator}
	var walk func(g vault.GroupData, prefix string)
	walk = func(g vault.GroupData, prefix string) {
		for _, c := range g.Children {
			p := prefix + c.Name
			out[c.UUID] = p
			walk(c, p+PathSeparator)
		}
	}
	walk(root, "")
	return out
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, PathSeparator) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
