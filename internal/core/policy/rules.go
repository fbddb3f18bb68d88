package policy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Wildcard matches any action, or any resource type including none.
const Wildcard = "*"

//go:embed default_policy.yaml
var defaultPolicy []byte

var (
	actionPattern   = regexp.MustCompile(`^[a-z][a-z_]*$`)
	resourcePattern = regexp.MustCompile(`^[A-Z][A-Za-z]*$`)
)

// Rule allows Action on Resource. An empty Resource matches requests that
// carry no resource type.
type Rule struct {
	Action   string `yaml:"action"`
	Resource string `yaml:"resource,omitempty"`
}

func (r Rule) matches(action, resourceType string) bool {
	if r.Action != Wildcard && r.Action != action {
		return false
	}
	return r.Resource == Wildcard || r.Resource == resourceType
}

func (r Rule) String() string {
	if r.Resource == "" {
		return r.Action
	}
	return r.Resource + ":" + r.Action
}

// RuleSet is the declarative policy loaded at startup.
type RuleSet struct {
	ResourceTypes []string          `yaml:"resource_types"`
	Actions       []string          `yaml:"actions"`
	Defaults      []Rule            `yaml:"defaults"`
	Roles         map[string][]Rule `yaml:"roles"`
}

// Default returns the rule set compiled into the binary.
func Default() (RuleSet, error) {
	return Parse(defaultPolicy)
}

// Load reads a rule set from path, or returns Default when path is empty.
func Load(path string) (RuleSet, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML rule set. Unknown keys are rejected.
func Parse(data []byte) (RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		return RuleSet{}, fmt.Errorf("decode policy: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// Validate checks that every rule refers to a declared action and resource type.
func (rs RuleSet) Validate() error {
	var errs []error

	if len(rs.Actions) == 0 {
		errs = append(errs, errors.New("policy declares no actions"))
	}
	actions := make(map[string]struct{}, len(rs.Actions))
	for _, a := range rs.Actions {
		if !actionPattern.MatchString(a) {
			errs = append(errs, fmt.Errorf("malformed action %q", a))
		}
		actions[a] = struct{}{}
	}
	resources := make(map[string]struct{}, len(rs.ResourceTypes))
	for _, r := range rs.ResourceTypes {
		if !resourcePattern.MatchString(r) {
			errs = append(errs, fmt.Errorf("malformed resource type %q", r))
		}
		resources[r] = struct{}{}
	}

	check := func(where string, rule Rule) {
		if _, ok := actions[rule.Action]; !ok && rule.Action != Wildcard {
			errs = append(errs, fmt.Errorf("%s: unknown action %q", where, rule.Action))
		}
		if _, ok := resources[rule.Resource]; !ok && rule.Resource != "" && rule.Resource != Wildcard {
			errs = append(errs, fmt.Errorf("%s: unknown resource type %q", where, rule.Resource))
		}
	}
	for _, rule := range rs.Defaults {
		check("defaults", rule)
	}
	for role, rules := range rs.Roles {
		if role == "" {
			errs = append(errs, errors.New("rule block with empty role name"))
		}
		for _, rule := range rules {
			check("role "+role, rule)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid policy: %w", errors.Join(errs...))
	}
	return nil
}
