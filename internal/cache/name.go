package cache

import (
	"fmt"
	"strings"
)

const (
	KindCode   = "pwa"
	KindAssets = "assets"
)

// StoreName renders as <prefix>-<kind>-<version>, e.g. njugush-assets-v2.
type StoreName struct {
	Prefix  string
	Kind    string
	Version string
}

func (n StoreName) String() string {
	return fmt.Sprintf("%s-%s-%s", n.Prefix, n.Kind, n.Version)
}

func ParseStoreName(prefix string, name string) (StoreName, bool) {
	if prefix == "" || !strings.HasPrefix(name, prefix+"-") {
		return StoreName{}, false
	}
	rest := strings.TrimPrefix(name, prefix+"-")
	idx := strings.LastIndex(rest, "-")
	if idx <= 0 || idx == len(rest)-1 {
		return StoreName{}, false
	}
	return StoreName{Prefix: prefix, Kind: rest[:idx], Version: rest[idx+1:]}, true
}

// StaleNames returns the names owned by prefix that are not in keep.
func StaleNames(prefix string, names []string, keep ...StoreName) []string {
	current := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		current[name.String()] = struct{}{}
	}
	stale := []string{}
	for _, name := range names {
		if _, ok := ParseStoreName(prefix, name); !ok {
			continue
		}
		if _, ok := current[name]; ok {
			continue
		}
		stale = append(stale, name)
	}
	return stale
}
