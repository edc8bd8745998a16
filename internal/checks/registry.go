// Package checks holds the named query registry: check name to parameterized
// SQL template, validated when registered and rendered by pure substitution.
package checks

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"branchcheck/internal/ddl"
	"branchcheck/internal/domain"
)

// Placeholders bound while a symmetric check is composed.
const (
	keyEnvironment = "environment"
	keyRelation    = "relation"
	keyTestName    = "test_name"
)

// Default relations for the two sides of a symmetric check.
const (
	DevTable  = "{{ dev_table }}"
	ProdTable = "{{ prod_table }}"
	// SourceTable is the qualified upstream table, for checks whose PROD side
	// compares against the source instead of the production table.
	SourceTable = "{{ source_bucket_object }}.{{ source_table_object }}"
)

// Check is a symmetric check definition. Side is one projection of the
// canonical columns, rendered once per environment: {{ environment }} becomes
// 'DEV' or 'PROD', {{ relation }} becomes the side's table, and {{ test_name }}
// becomes the quoted check name. Both sides use Side unless ProdSide is set.
type Check struct {
	Name         string
	Side         string
	ProdSide     string
	DevRelation  string
	ProdRelation string
}

// Registry maps check names to templates. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*Template)}
}

// NewDefaultRegistry returns a registry preloaded with the built-in checks.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range Builtins() {
		if err := r.RegisterCheck(c); err != nil {
			panic(fmt.Sprintf("builtin check %s: %v", c.Name, err))
		}
	}
	return r
}

// Register stores a raw template under name. Last write wins.
func (r *Registry) Register(name, text string) error {
	if err := ddl.ValidateIdentifier(name); err != nil {
		return domain.ErrValidation("check name %q: %v", name, err)
	}
	tmpl, err := ParseTemplate(text)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	r.mu.Lock()
	r.templates[name] = tmpl
	r.mu.Unlock()
	return nil
}

// RegisterCheck composes a symmetric check into a DEV UNION ALL PROD template
// and registers it.
func (r *Registry) RegisterCheck(c Check) error {
	text, err := composeCheck(c)
	if err != nil {
		return fmt.Errorf("register %s: %w", c.Name, err)
	}
	return r.Register(c.Name, text)
}

func composeCheck(c Check) (string, error) {
	if strings.TrimSpace(c.Side) == "" {
		return "", domain.ErrValidation("side projection is required")
	}
	prodSide := c.Side
	if strings.TrimSpace(c.ProdSide) != "" {
		prodSide = c.ProdSide
	}
	devRel := c.DevRelation
	if devRel == "" {
		devRel = DevTable
	}
	prodRel := c.ProdRelation
	if prodRel == "" {
		prodRel = ProdTable
	}

	dev, err := bindSide(c.Side, c.Name, domain.EnvironmentDev, devRel)
	if err != nil {
		return "", err
	}
	prod, err := bindSide(prodSide, c.Name, domain.EnvironmentProd, prodRel)
	if err != nil {
		return "", err
	}
	return dev + "\n\nUNION ALL\n\n" + prod, nil
}

func bindSide(side, name string, env domain.Environment, relation string) (string, error) {
	if !strings.Contains(side, "{{") {
		return "", domain.ErrValidation("side projection has no placeholders")
	}
	bound := map[string]string{
		keyEnvironment: ddl.QuoteLiteral(string(env)),
		keyRelation:    relation,
		keyTestName:    ddl.QuoteLiteral(name),
	}
	return expand(side, func(key string) (string, bool) {
		v, ok := bound[key]
		return v, ok
	})
}

// Render substitutes subs into the named template.
func (r *Registry) Render(name string, subs map[string]string) (string, error) {
	tmpl, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	return tmpl.Execute(name, subs)
}

// RequiredParameters returns the sorted substitution keys of the named template.
func (r *Registry) RequiredParameters(name string) ([]string, error) {
	tmpl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return tmpl.Parameters(), nil
}

// Source returns the raw template text of the named check.
func (r *Registry) Source(name string) (string, error) {
	tmpl, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	return tmpl.Text(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Names returns the registered check names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidateCatalog reports every catalog test name with no registered
// template as a single UnknownCheckError, names in first-seen order.
func (r *Registry) ValidateCatalog(rows []domain.CheckDefinition) error {
	var unknown []string
	seen := make(map[string]bool)
	for _, row := range rows {
		if seen[row.TestName] {
			continue
		}
		seen[row.TestName] = true
		if !r.Has(row.TestName) {
			unknown = append(unknown, row.TestName)
		}
	}
	if len(unknown) > 0 {
		return domain.ErrUnknownCheck(unknown...)
	}
	return nil
}

func (r *Registry) lookup(name string) (*Template, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUnknownCheck(name)
	}
	return tmpl, nil
}
