package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteRule restricts every path under Prefix to the listed roles. Methods,
// when set, limits the rule to those HTTP methods.
type RouteRule struct {
	Prefix  string   `yaml:"prefix"`
	Roles   []string `yaml:"roles"`
	Methods []string `yaml:"methods,omitempty"`
}

type RoutePolicy struct {
	Rules []RouteRule `yaml:"rules"`
}

const defaultPolicy = `
rules:
  - prefix: /api/audit
    roles: [admin]
  - prefix: /audit
    roles: [admin]
  - prefix: /api/whatsapp
    roles: [admin, manager]
  - prefix: /whatsapp
    roles: [admin, manager]
  - prefix: /api/attributes
    roles: [admin, manager]
    methods: [POST, PUT, DELETE]
  - prefix: /attributes
    roles: [admin, manager]
    methods: [POST]
`

func DefaultRoutePolicy() RoutePolicy {
	policy, err := ParseRoutePolicy([]byte(defaultPolicy))
	if err != nil {
		panic(err)
	}
	return policy
}

// LoadRoutePolicy reads the YAML policy at path, or the built-in policy when
// path is empty.
func LoadRoutePolicy(path string) (RoutePolicy, error) {
	if path == "" {
		return DefaultRoutePolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RoutePolicy{}, fmt.Errorf("read route policy: %w", err)
	}
	return ParseRoutePolicy(data)
}

func ParseRoutePolicy(data []byte) (RoutePolicy, error) {
	var policy RoutePolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return RoutePolicy{}, fmt.Errorf("parse route policy: %w", err)
	}
	for i, rule := range policy.Rules {
		if !strings.HasPrefix(rule.Prefix, "/") {
			return RoutePolicy{}, fmt.Errorf("route policy rule %d: prefix must start with /", i)
		}
		if len(rule.Roles) == 0 {
			return RoutePolicy{}, fmt.Errorf("route policy rule %d: roles are required", i)
		}
		for j, method := range rule.Methods {
			policy.Rules[i].Methods[j] = strings.ToUpper(method)
		}
	}
	sort.SliceStable(policy.Rules, func(i, j int) bool {
		return len(policy.Rules[i].Prefix) > len(policy.Rules[j].Prefix)
	})
	return policy, nil
}

// Allowed reports whether role may reach method+path. The longest matching
// prefix decides; paths without a rule are open to every signed-in role.
func (p RoutePolicy) Allowed(method, path, role string) bool {
	for _, rule := range p.Rules {
		if !matchPrefix(path, rule.Prefix) {
			continue
		}
		if len(rule.Methods) > 0 && !contains(rule.Methods, method) {
			continue
		}
		return contains(rule.Roles, role)
	}
	return true
}

func matchPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimRight(prefix, "/")+"/")
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
