// Package transform applies cleanup rules to CSV content.
//
// Steps operate on a parsed Table and must keep column order and the
// relative order of the rows they keep.
package transform

import (
	"fmt"
	"strings"
)

// Step is a single transformation rule
type Step interface {
	Name() string
	Apply(t *Table) error
}

type stepFunc struct {
	name string
	fn   func(t *Table) error
}

func (s stepFunc) Name() string         { return s.name }
func (s stepFunc) Apply(t *Table) error { return s.fn(t) }

// NewStep wraps a function as a named Step
func NewStep(name string, fn func(t *Table) error) Step {
	return stepFunc{name: name, fn: fn}
}

// Pipeline runs steps in order over parsed CSV content
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a pipeline from the given steps
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Default returns the standard cleanup: drop empty rows, then normalize headers
func Default() *Pipeline {
	return NewPipeline(DropEmptyRows(), NormalizeHeaders())
}

// Append returns a new pipeline with extra steps after the existing ones
func (p *Pipeline) Append(steps ...Step) *Pipeline {
	combined := make([]Step, 0, len(p.steps)+len(steps))
	combined = append(combined, p.steps...)
	combined = append(combined, steps...)
	return &Pipeline{steps: combined}
}

// Steps returns the step names in execution order
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Transform parses data, applies every step and re-encodes the result
func (p *Pipeline) Transform(data []byte) ([]byte, error) {
	table, err := Parse(data)
	if err != nil {
		return nil, err
	}

	for _, s := range p.steps {
		if err := s.Apply(table); err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name(), err)
		}
	}

	return table.Encode()
}

// DropEmptyRows removes rows whose fields are all empty
func DropEmptyRows() Step {
	return NewStep("drop_empty_rows", func(t *Table) error {
		kept := t.Rows[:0]
		for _, row := range t.Rows {
			if !isEmptyRow(row) {
				kept = append(kept, row)
			}
		}
		t.Rows = kept
		return nil
	})
}

// NormalizeHeaders trims surrounding whitespace from headers and upper-cases them
func NormalizeHeaders() Step {
	return NewStep("normalize_headers", func(t *Table) error {
		for i, h := range t.Header {
			t.Header[i] = strings.ToUpper(strings.TrimSpace(h))
		}
		return nil
	})
}

func isEmptyRow(row []string) bool {
	for _, field := range row {
		if field != "" {
			return false
		}
	}
	return true
}
