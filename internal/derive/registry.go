// Package derive computes named derived variables over a merged panel.
// Definitions are pure per-row formulas with documented citations; they may
// reference other derived variables, and circular references fail at
// configuration time, before any row is read. Missing inputs degrade the
// row's value to missing and are recorded, never aborting the run.
package derive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Definition declares one derived variable: the inputs it reads (raw dataset
// fields or other derived variables), the formula, and the source citation
// carried into documentation and reports.
type Definition struct {
	Name     string
	Inputs   []string
	Citation string

	// Compute evaluates the formula for one row. Every input is present in
	// the map. Returning ok=false yields a missing value for the row
	// (undefined ratios, non-positive logs).
	Compute func(in map[string]float64) (value float64, ok bool)
}

// CircularDefinitionError reports a dependency cycle among derived-variable
// definitions, detected before any row processing.
type CircularDefinitionError struct {
	Cycle []string
}

func (e *CircularDefinitionError) Error() string {
	return fmt.Sprintf("circular derived-variable definition: %s", strings.Join(e.Cycle, " -> "))
}

// Registry holds the available definitions by name.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry builds a registry from definitions, rejecting duplicates.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers one definition.
func (r *Registry) Add(d Definition) error {
	if d.Name == "" {
		return eris.New("derive: definition with empty name")
	}
	if d.Compute == nil {
		return eris.Errorf("derive: definition %q has no formula", d.Name)
	}
	if _, dup := r.defs[d.Name]; dup {
		return eris.Errorf("derive: duplicate definition %q", d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns all registered definition names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Plan resolves the requested variables into evaluation order. Dependencies
// on other derived variables are pulled in transitively and ordered before
// their dependents; inputs not known as definitions are treated as raw
// dataset fields and returned separately. Cycles fail with
// CircularDefinitionError; unknown requested names fail immediately.
func (r *Registry) Plan(requested []string) (ordered []Definition, rawInputs []string, err error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)
	rawSet := make(map[string]bool)
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			// Close the cycle for the error message.
			cycle := append([]string{}, stack...)
			for i, n := range cycle {
				if n == name {
					cycle = cycle[i:]
					break
				}
			}
			return &CircularDefinitionError{Cycle: append(cycle, name)}
		}

		def, ok := r.defs[name]
		if !ok {
			rawSet[name] = true
			return nil
		}

		state[name] = visiting
		stack = append(stack, name)
		for _, in := range def.Inputs {
			if err := visit(in); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		ordered = append(ordered, def)
		return nil
	}

	for _, name := range requested {
		if _, ok := r.defs[name]; !ok {
			return nil, nil, eris.Errorf("derive: unknown variable %q", name)
		}
		if err := visit(name); err != nil {
			return nil, nil, err
		}
	}

	rawInputs = make([]string, 0, len(rawSet))
	for n := range rawSet {
		rawInputs = append(rawInputs, n)
	}
	sort.Strings(rawInputs)
	return ordered, rawInputs, nil
}
