// Package pipeline models an ordered list of view definitions and the
// dependency graph implied by the relations each view reads.
package pipeline

import (
	"fmt"
	"strings"

	"flakeview/pkg/errors"
)

// ViewDefinition is one named CREATE VIEW statement.
type ViewDefinition struct {
	Name        string `yaml:"name" mapstructure:"name" json:"name"`
	Query       string `yaml:"query" mapstructure:"query" json:"query"`
	Description string `yaml:"description,omitempty" mapstructure:"description" json:"description,omitempty"`
}

// Target returns the normalized name of the object the statement creates.
func (v ViewDefinition) Target() string {
	return TargetOf(v.Query)
}

// References returns the relations the statement reads.
func (v ViewDefinition) References() []string {
	return References(v.Query)
}

// Pipeline is an ordered sequence of view definitions. Deployment order is
// slice order.
type Pipeline []ViewDefinition

// Names returns the view names in pipeline order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, v := range p {
		names[i] = v.Name
	}
	return names
}

// Index returns the position of the named view or -1.
func (p Pipeline) Index(name string) int {
	for i, v := range p {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns the named view.
func (p Pipeline) Lookup(name string) (ViewDefinition, bool) {
	if i := p.Index(name); i >= 0 {
		return p[i], true
	}
	return ViewDefinition{}, false
}

// Dependencies returns, for every view, the positions of the pipeline views
// it reads from. References to objects outside the pipeline are not included.
// An unqualified reference matches a target by its last part, and a qualified
// reference with no exact match falls back to an unqualified target of the
// same name.
func (p Pipeline) Dependencies() [][]int {
	byTarget := make(map[string]int, len(p))
	byShort := make(map[string]int, len(p))
	byPlain := make(map[string]int, len(p))
	for i, v := range p {
		target := v.Target()
		if target == "" {
			target = normalizeIdentifier(v.Name)
		}
		if _, dup := byTarget[target]; !dup {
			byTarget[target] = i
		}
		if _, dup := byShort[unqualified(target)]; !dup {
			byShort[unqualified(target)] = i
		}
		if _, dup := byPlain[target]; !dup && !strings.Contains(target, ".") {
			byPlain[target] = i
		}
	}

	deps := make([][]int, len(p))
	for i, v := range p {
		seen := make(map[int]bool)
		for _, ref := range v.References() {
			j, ok := byTarget[ref]
			if !ok {
				if strings.Contains(ref, ".") {
					j, ok = byPlain[unqualified(ref)]
				} else {
					j, ok = byShort[ref]
				}
			}
			if !ok || j == i || seen[j] {
				continue
			}
			seen[j] = true
			deps[i] = append(deps[i], j)
		}
	}
	return deps
}

// Validate checks the pipeline before anything is executed: every entry must
// be a named CREATE VIEW statement, names and targets must be unique, and a
// view may only read pipeline views defined strictly earlier.
func (p Pipeline) Validate() error {
	if len(p) == 0 {
		return errors.New(errors.ErrCodeValidationFailed, "Pipeline contains no views")
	}

	var (
		issues     []string
		outOfOrder bool
		names      = make(map[string]int)
		targets    = make(map[string]int)
	)

	for i, v := range p {
		pos := i + 1
		label := v.Name
		if label == "" {
			label = fmt.Sprintf("#%d", pos)
			issues = append(issues, fmt.Sprintf("view at position %d has no name", pos))
		} else if prev, dup := names[v.Name]; dup {
			issues = append(issues, fmt.Sprintf("view %q at position %d duplicates position %d", v.Name, pos, prev))
		} else {
			names[v.Name] = pos
		}

		if strings.TrimSpace(v.Query) == "" {
			issues = append(issues, fmt.Sprintf("view %s has an empty query", label))
			continue
		}

		target := v.Target()
		if target == "" {
			issues = append(issues, fmt.Sprintf("view %s is not a CREATE VIEW statement", label))
			continue
		}
		if prev, dup := targets[target]; dup {
			issues = append(issues, fmt.Sprintf("view %s creates %s, already created at position %d", label, target, prev))
		} else {
			targets[target] = pos
		}
	}

	for i, deps := range p.Dependencies() {
		for _, j := range deps {
			if j > i {
				outOfOrder = true
				issues = append(issues, fmt.Sprintf("view %q (position %d) reads %q, which is defined later at position %d",
					p[i].Name, i+1, p[j].Name, j+1))
			}
		}
	}

	if len(issues) == 0 {
		return nil
	}

	code := errors.ErrCodeValidationFailed
	if outOfOrder {
		code = errors.ErrCodeDependencyOrder
	}

	err := errors.New(code, fmt.Sprintf("Pipeline validation failed: %s", strings.Join(issues, "; "))).
		WithContext("issues", issues).
		WithContext("views", len(p))
	if outOfOrder {
		_ = err.WithSuggestions(
			"Move each view after the views it reads from",
			"Deploy with --sort to order views by their dependencies",
		)
	}
	return err
}

// Graph builds the dependency graph. Edges point from a view to the views
// that read it.
func (p Pipeline) Graph() *Graph {
	g := NewGraph()
	for i, v := range p {
		g.AddNode(v.Name, i)
	}
	for i, deps := range p.Dependencies() {
		for _, j := range deps {
			_ = g.AddEdge(p[j].Name, p[i].Name)
		}
	}
	return g
}

// Sorted returns the pipeline in dependency order. Views keep their relative
// order wherever dependencies allow it.
func (p Pipeline) Sorted() (Pipeline, error) {
	order, err := p.Graph().TopologicalSort()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDependencyOrder, "Pipeline views form a dependency cycle")
	}
	return p.pick(order), nil
}

// From returns the suffix of the pipeline starting at the named view.
func (p Pipeline) From(name string) (Pipeline, error) {
	i := p.Index(name)
	if i < 0 {
		return nil, unknownView(name, p)
	}
	return p[i:], nil
}

// Select returns the named views and every view downstream of them, in
// pipeline order.
func (p Pipeline) Select(names ...string) (Pipeline, error) {
	for _, name := range names {
		if p.Index(name) < 0 {
			return nil, unknownView(name, p)
		}
	}

	affected := make(map[string]bool)
	for _, name := range p.Graph().Downstream(names) {
		affected[name] = true
	}

	var selected Pipeline
	for _, v := range p {
		if affected[v.Name] {
			selected = append(selected, v)
		}
	}
	return selected, nil
}

func (p Pipeline) pick(names []string) Pipeline {
	out := make(Pipeline, 0, len(names))
	for _, name := range names {
		if v, ok := p.Lookup(name); ok {
			out = append(out, v)
		}
	}
	return out
}

func unknownView(name string, p Pipeline) error {
	return errors.New(errors.ErrCodeNotFound, fmt.Sprintf("View %q is not part of the pipeline", name)).
		WithContext("view", name).
		WithSuggestions(fmt.Sprintf("Known views: %s", strings.Join(p.Names(), ", ")))
}
