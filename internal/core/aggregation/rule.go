package aggregation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AggregationRule defines a single projection rule.
// Rules are loaded at startup from YAML files and fingerprinted so stored
// metrics can be traced back to the rule revision that produced them.
//
// A rule without OwnerType projects an aggregate's own stream (direct lane).
// A rule with OwnerType projects AggregateType streams joined into owners of
// that type (join lanes).
type AggregationRule struct {
	Name          string `yaml:"name"`
	AggregateType string `yaml:"aggregate_type"` // stream the rule consumes
	OwnerType     string `yaml:"owner_type"`     // empty for direct lanes
	SourceEvent   string `yaml:"source_event"`
	Operator      string `yaml:"operator"` // count, sum, min, max
	Field         string `yaml:"field"`    // event data field to aggregate; empty for count
	Fingerprint   string // SHA-256 of the raw YAML file; computed at load time
}

// IsJoin reports whether the rule applies to join lanes.
func (r AggregationRule) IsJoin() bool {
	return r.OwnerType != ""
}

// Matches reports whether the rule applies to a lane whose owner and source
// have the given types.
func (r AggregationRule) Matches(ownerType, sourceType string, join bool) bool {
	if r.AggregateType != sourceType || r.IsJoin() != join {
		return false
	}
	return !join || r.OwnerType == ownerType
}

// RuleRepository defines the interface for loading aggregation rules.
type RuleRepository interface {
	// Get returns the rule with the given name, or an error if not found.
	Get(ctx context.Context, name string) (*AggregationRule, error)

	// List returns all loaded rules, optionally filtered by source event type.
	List(ctx context.Context, sourceEvent string) ([]AggregationRule, error)

	// GetRules returns all rules sorted by name.
	GetRules() []AggregationRule
}

// FileSystemRuleRepository loads aggregation rules from *.yaml files in a directory.
// Each file contains exactly one rule at the top level. Rules are loaded once at
// startup and cached in memory.
type FileSystemRuleRepository struct {
	dir   string
	rules map[string]AggregationRule // keyed by Name
}

// NewFileSystemRuleRepository creates a new repository and eagerly loads all rules
// from dir. Returns an error if any rule file is malformed or invalid.
func NewFileSystemRuleRepository(dir string) (*FileSystemRuleRepository, error) {
	repo := &FileSystemRuleRepository{
		dir:   dir,
		rules: make(map[string]AggregationRule),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewStaticRuleRepository validates rules built in code. Fingerprints are
// derived from the rule fields.
func NewStaticRuleRepository(rules ...AggregationRule) (*FileSystemRuleRepository, error) {
	repo := &FileSystemRuleRepository{rules: make(map[string]AggregationRule, len(rules))}
	for _, rule := range rules {
		if rule.Fingerprint == "" {
			raw, err := yaml.Marshal(rule)
			if err != nil {
				return nil, fmt.Errorf("fingerprint rule %q: %w", rule.Name, err)
			}
			rule.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(raw))
		}
		if err := repo.add(rule); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (r *FileSystemRuleRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no rules directory: valid, zero rules configured
	}
	if err != nil {
		return fmt.Errorf("aggregation rule dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("aggregation rule path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading aggregation rule dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading rule file %s: %w", path, err)
		}

		var rule AggregationRule
		if err := yaml.Unmarshal(data, &rule); err != nil {
			return fmt.Errorf("parsing rule file %s: %w", path, err)
		}
		if rule.Name == "" {
			continue // skip empty / comment-only files
		}
		rule.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))

		if err := r.add(rule); err != nil {
			return fmt.Errorf("rule file %s: %w", path, err)
		}
	}
	return nil
}

func (r *FileSystemRuleRepository) add(rule AggregationRule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if rule.AggregateType == "" {
		return fmt.Errorf("rule %q: aggregate_type must not be empty", rule.Name)
	}
	if strings.Contains(rule.AggregateType, "/") || strings.Contains(rule.OwnerType, "/") {
		return fmt.Errorf("rule %q: aggregate types must not contain '/'", rule.Name)
	}
	if rule.SourceEvent == "" {
		return fmt.Errorf("rule %q: source_event must not be empty", rule.Name)
	}
	if !ValidOperator(rule.Operator) {
		return fmt.Errorf("rule %q: unsupported operator %q", rule.Name, rule.Operator)
	}
	if rule.Operator != OpCount && rule.Field == "" {
		return fmt.Errorf("rule %q: operator %s requires a field", rule.Name, rule.Operator)
	}
	if _, exists := r.rules[rule.Name]; exists {
		return fmt.Errorf("rule %q: duplicate rule name (check multiple YAML files)", rule.Name)
	}
	r.rules[rule.Name] = rule
	return nil
}

// Get returns the rule with the given name, or an error if not found.
func (r *FileSystemRuleRepository) Get(_ context.Context, name string) (*AggregationRule, error) {
	rule, ok := r.rules[name]
	if !ok {
		return nil, fmt.Errorf("aggregation rule %q not found", name)
	}
	return &rule, nil
}

// List returns all loaded rules, optionally filtered by source event type.
func (r *FileSystemRuleRepository) List(_ context.Context, sourceEvent string) ([]AggregationRule, error) {
	var out []AggregationRule
	for _, rule := range r.GetRules() {
		if sourceEvent != "" && rule.SourceEvent != sourceEvent {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// GetRules returns all rules sorted by name.
func (r *FileSystemRuleRepository) GetRules() []AggregationRule {
	rules := make([]AggregationRule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}
