package classify

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/backup-monitor/internal/models"
)

// Operator enumerates the comparisons a rule condition may use.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpRegex       Operator = "regex"
)

// Condition is one predicate in a classification rule. Field supports dot
// notation for nested metadata lookup, e.g. "metadata.agent.name".
type Condition struct {
	Field         string   `yaml:"field"`
	Operator      Operator `yaml:"operator"`
	Value         any      `yaml:"value"`
	CaseSensitive *bool    `yaml:"case_sensitive"`

	pattern *regexp.Regexp
}

// Rule assigns a backup type when all its conditions match.
type Rule struct {
	Name       string      `yaml:"name"`
	BackupType string      `yaml:"backup_type"`
	Conditions []Condition `yaml:"conditions"`
}

type rulePackFile struct {
	Rules []Rule `yaml:"rules"`
}

// Classifier assigns backup types by evaluating an ordered YAML rule pack.
// Rules are evaluated first to last; the first full match wins.
type Classifier struct {
	rules       []Rule
	defaultType string
	logger      *slog.Logger
}

// NewClassifier loads a rule pack from path. An empty or missing path yields
// a classifier that only applies the default type. Regex conditions are
// compiled at load time so malformed patterns fail here, not per record.
func NewClassifier(path, defaultType string, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{defaultType: defaultType, logger: logger}

	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("classification rule pack not found, using default type only", slog.String("path", path))
			return c, nil
		}
		return nil, fmt.Errorf("read rule pack: %w", err)
	}
	var pack rulePackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}

	for ri := range pack.Rules {
		rule := &pack.Rules[ri]
		if rule.BackupType == "" {
			return nil, fmt.Errorf("rule %q: backup_type is required", rule.Name)
		}
		for ci := range rule.Conditions {
			cond := &rule.Conditions[ci]
			if cond.Operator != OpRegex {
				continue
			}
			flags := ""
			if !cond.caseSensitive() {
				flags = "(?i)"
			}
			pattern, err := regexp.Compile(flags + fmt.Sprint(cond.Value))
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid regex: %w", rule.Name, err)
			}
			cond.pattern = pattern
		}
	}

	c.rules = pack.Rules
	logger.Debug("classification rules loaded", slog.Int("rules", len(pack.Rules)), slog.String("path", path))
	return c, nil
}

func (c *Condition) caseSensitive() bool {
	return c.CaseSensitive == nil || *c.CaseSensitive
}

// Classify returns the backup type for a record. A type already assigned
// upstream is preserved; otherwise the first matching rule decides, falling
// back to the default type.
func (c *Classifier) Classify(record models.BackupRecord) string {
	if record.BackupType != "" && record.BackupType != c.defaultType {
		return record.BackupType
	}

	doc := document(record)
	for _, rule := range c.rules {
		if matches(rule, doc) {
			return rule.BackupType
		}
	}
	return c.defaultType
}

// Apply classifies every record in the batch, returning a new slice; the
// input records are not mutated.
func (c *Classifier) Apply(records []models.BackupRecord) []models.BackupRecord {
	classified := make([]models.BackupRecord, len(records))
	for i, record := range records {
		record.BackupType = c.Classify(record)
		classified[i] = record
	}
	return classified
}

// document flattens a record into the generic key-value view rule fields
// address.
func document(record models.BackupRecord) map[string]any {
	return map[string]any{
		"backup_id":     record.BackupID,
		"backup_type":   record.BackupType,
		"status":        string(record.Status),
		"source_system": record.SourceSystem,
		"metadata":      record.Metadata,
	}
}

func matches(rule Rule, doc map[string]any) bool {
	for _, cond := range rule.Conditions {
		if !evaluate(cond, doc) {
			return false
		}
	}
	return len(rule.Conditions) > 0
}

// lookupPath walks a dot-separated path through nested maps.
func lookupPath(doc map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	var current any = doc
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

func evaluate(cond Condition, doc map[string]any) bool {
	value, ok := lookupPath(doc, cond.Field)
	if !ok {
		return false
	}

	field := fmt.Sprint(value)
	compare := fmt.Sprint(cond.Value)
	if !cond.caseSensitive() {
		field = strings.ToLower(field)
		compare = strings.ToLower(compare)
	}

	switch cond.Operator {
	case OpEquals:
		return field == compare
	case OpNotEquals:
		return field != compare
	case OpContains:
		return strings.Contains(field, compare)
	case OpNotContains:
		return !strings.Contains(field, compare)
	case OpStartsWith:
		return strings.HasPrefix(field, compare)
	case OpEndsWith:
		return strings.HasSuffix(field, compare)
	case OpIn:
		options, ok := cond.Value.([]any)
		if !ok {
			return false
		}
		for _, option := range options {
			candidate := fmt.Sprint(option)
			if !cond.caseSensitive() {
				candidate = strings.ToLower(candidate)
			}
			if field == candidate {
				return true
			}
		}
		return false
	case OpRegex:
		return cond.pattern != nil && cond.pattern.MatchString(fmt.Sprint(value))
	}
	return false
}
