package shop

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Registry Types
// =============================================================================

// Environment is a named deployment target within a shop.
type Environment struct {
	Name        string
	Password    Credential
	ThemeID     string
	Store       string
	IgnoreFiles []string
	// Extra holds additional scalar settings passed through to the deploy tool
	// config in their original order (e.g. timeout, directory).
	Extra []Setting
}

// Setting is one pass-through key/value pair.
type Setting struct {
	Key   string
	Value string
}

// Shop is one registry entry with its environments in configuration order.
type Shop struct {
	ID           ID
	Parts        IDParts
	Environments []Environment
}

// Target is one shop/environment pair.
type Target struct {
	Shop        Shop
	Environment Environment
}

// Registry maps shop ids to their environments. Iteration order is the
// insertion order of the configuration source. A Registry is never mutated
// after construction.
type Registry struct {
	shops []Shop
	index map[ID]int
}

// Known environment keys.
const (
	keyPassword    = "password"
	keyThemeID     = "theme_id"
	keyStore       = "store"
	keyIgnoreFiles = "ignore_files"
)

// =============================================================================
// Construction
// =============================================================================

// NewRegistry builds a registry from shops in the given order.
// Shop ids are parsed with delim; duplicates are rejected.
func NewRegistry(delim string, shops ...Shop) (*Registry, error) {
	r := &Registry{index: make(map[ID]int, len(shops))}
	for _, s := range shops {
		parts, err := s.ID.Parse(delim)
		if err != nil {
			return nil, NewParseError(string(s.ID), 0, err.Error(), err)
		}
		if _, dup := r.index[s.ID]; dup {
			return nil, NewParseError(string(s.ID), 0, "shop defined more than once", ErrDuplicateShop)
		}
		seen := make(map[string]bool, len(s.Environments))
		for _, env := range s.Environments {
			if seen[env.Name] {
				return nil, NewParseError(string(s.ID)+"."+env.Name, 0, "environment defined more than once", ErrDuplicateEnvironment)
			}
			seen[env.Name] = true
		}
		s.Parts = parts
		s.Environments = append([]Environment(nil), s.Environments...)
		r.index[s.ID] = len(r.shops)
		r.shops = append(r.shops, s)
	}
	return r, nil
}

// Parse parses a registry YAML document. Top-level keys are shop ids, each
// mapping environment names to {password, theme_id, store, ignore_files}.
// An empty document yields an empty registry.
func Parse(data []byte, delim string) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewParseError("", 0, "invalid YAML syntax: "+err.Error(), ErrInvalidRegistry)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewRegistry(delim)
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return NewRegistry(delim)
	}
	if root.Kind != yaml.MappingNode {
		return nil, NewParseError("", root.Line, "top level must be a mapping of shop ids", ErrInvalidRegistry)
	}

	shops := make([]Shop, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		s, err := parseShop(keyNode, valNode)
		if err != nil {
			return nil, err
		}
		shops = append(shops, s)
	}
	return NewRegistry(delim, shops...)
}

func parseShop(keyNode, valNode *yaml.Node) (Shop, error) {
	id := ID(keyNode.Value)
	s := Shop{ID: id}

	if valNode.Kind == yaml.ScalarNode && valNode.Tag == "!!null" {
		return s, nil
	}
	if valNode.Kind != yaml.MappingNode {
		return Shop{}, NewParseError(string(id), valNode.Line, "shop must be a mapping of environments", ErrInvalidRegistry)
	}

	for i := 0; i+1 < len(valNode.Content); i += 2 {
		envKey, envVal := valNode.Content[i], valNode.Content[i+1]
		env, err := parseEnvironment(string(id)+"."+envKey.Value, envKey.Value, envVal)
		if err != nil {
			return Shop{}, err
		}
		s.Environments = append(s.Environments, env)
	}
	return s, nil
}

func parseEnvironment(field, name string, node *yaml.Node) (Environment, error) {
	env := Environment{Name: name}
	if strings.TrimSpace(name) == "" {
		return env, NewParseError(field, node.Line, "environment name is empty", ErrInvalidRegistry)
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return env, nil
	}
	if node.Kind != yaml.MappingNode {
		return env, NewParseError(field, node.Line, "environment must be a mapping", ErrInvalidRegistry)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		f := field + "." + k.Value

		if k.Value == keyIgnoreFiles {
			patterns, err := parseIgnoreFiles(f, v)
			if err != nil {
				return env, err
			}
			env.IgnoreFiles = patterns
			continue
		}

		if v.Kind != yaml.ScalarNode {
			return env, NewParseError(f, v.Line, "value must be a scalar", ErrInvalidRegistry)
		}
		switch k.Value {
		case keyPassword:
			env.Password = ParseCredential(v.Value)
		case keyThemeID:
			env.ThemeID = v.Value
		case keyStore:
			env.Store = v.Value
		default:
			env.Extra = append(env.Extra, Setting{Key: k.Value, Value: v.Value})
		}
	}
	return env, nil
}

func parseIgnoreFiles(field string, node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			return nil, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		patterns := make([]string, 0, len(node.Content))
		for i, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, NewParseError(fmt.Sprintf("%s[%d]", field, i), item.Line, "pattern must be a string", ErrInvalidRegistry)
			}
			patterns = append(patterns, item.Value)
		}
		return patterns, nil
	default:
		return nil, NewParseError(field, node.Line, "must be a list of patterns", ErrInvalidRegistry)
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Len returns the number of shops.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.shops)
}

// Shops returns the shops in configuration order.
func (r *Registry) Shops() []Shop {
	if r == nil {
		return nil
	}
	return append([]Shop(nil), r.shops...)
}

// Lookup returns the shop with the given id.
func (r *Registry) Lookup(id ID) (Shop, bool) {
	if r == nil {
		return Shop{}, false
	}
	i, ok := r.index[id]
	if !ok {
		return Shop{}, false
	}
	return r.shops[i], true
}

// Targets returns every shop/environment pair in registry order.
func (r *Registry) Targets() []Target {
	if r == nil {
		return nil
	}
	var targets []Target
	for _, s := range r.shops {
		for _, env := range s.Environments {
			targets = append(targets, Target{Shop: s, Environment: env})
		}
	}
	return targets
}
