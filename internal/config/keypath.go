package config

import (
	"strconv"
	"strings"
)

// KeyPath addresses a value in the raw YAML tree, e.g. "gateway.rateLimit.requests".
type KeyPath []string

// secretKeys are leaf names whose values are never printed.
var secretKeys = []string{"jwtSecret"}

// ParseKeyPath splits a dotted key. Every segment must start with a letter
// and contain only letters, digits and underscores.
func ParseKeyPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty key"}
	}
	segs := strings.Split(raw, ".")
	for _, seg := range segs {
		if !validSegment(seg) {
			return nil, &ConfigError{Message: "invalid key segment " + strconv.Quote(seg) + " in " + strconv.Quote(raw)}
		}
	}
	return KeyPath(segs), nil
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for i, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_'):
		default:
			return false
		}
	}
	return true
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// IsSecret reports whether k names a credential.
func (k KeyPath) IsSecret() bool {
	if len(k) == 0 {
		return false
	}
	leaf := k[len(k)-1]
	for _, s := range secretKeys {
		if strings.EqualFold(leaf, s) {
			return true
		}
	}
	return false
}

// parent walks to the map holding the leaf. With create set, missing or
// non-map intermediates are replaced by empty maps.
func (k KeyPath) parent(tree map[string]any, create bool) (map[string]any, bool) {
	node := tree
	for _, seg := range k[:len(k)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	return node, true
}

// Lookup returns the value at k.
func (k KeyPath) Lookup(tree map[string]any) (any, bool) {
	node, ok := k.parent(tree, false)
	if !ok {
		return nil, false
	}
	v, ok := node[k[len(k)-1]]
	return v, ok
}

// Set stores v at k, creating intermediate maps.
func (k KeyPath) Set(tree map[string]any, v any) {
	node, _ := k.parent(tree, true)
	node[k[len(k)-1]] = v
}

// Delete removes the value at k and reports whether it existed.
func (k KeyPath) Delete(tree map[string]any) bool {
	node, ok := k.parent(tree, false)
	if !ok {
		return false
	}
	leaf := k[len(k)-1]
	if _, ok := node[leaf]; !ok {
		return false
	}
	delete(node, leaf)
	return true
}
