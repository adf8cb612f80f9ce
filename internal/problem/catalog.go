// Package problem holds the built-in problem catalog.
//
// Each problem is one YAML file under catalog/, embedded into the binary.
// A playable problem carries a statement, starter code and a checker: a
// JavaScript function that receives the learner's function and either
// returns true or reports a failing test case through the validator
// prelude (expectEqual, fail, createLinkedList, getListValues, ...).
// Link-only problems point at an external page and cannot be submitted.
package problem

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/model"
)

//go:embed catalog/*.yaml
var builtin embed.FS

// Example is one worked example shown under the statement.
type Example struct {
	Input       string `yaml:"input"       json:"input"`
	Output      string `yaml:"output"      json:"output"`
	Explanation string `yaml:"explanation" json:"explanation,omitempty"`
}

// Definition is a catalog entry.
type Definition struct {
	ID         string `yaml:"id"         json:"id"`
	Title      string `yaml:"title"      json:"title"`
	Category   string `yaml:"category"   json:"category"`
	Difficulty string `yaml:"difficulty" json:"difficulty"`
	Order      int    `yaml:"order"      json:"order"`
	VideoID    string `yaml:"video_id"   json:"videoId,omitempty"`
	Link       string `yaml:"link"       json:"link,omitempty"`

	// TimeoutMS overrides the validator's default deadline when positive.
	TimeoutMS int `yaml:"timeout_ms" json:"timeoutMs,omitempty"`

	// FunctionPrefix is the start of the function the learner must keep,
	// e.g. "function twoSum(". Anything before it is dropped on submit.
	FunctionPrefix string    `yaml:"function_prefix" json:"functionPrefix,omitempty"`
	Statement      string    `yaml:"statement"       json:"statement,omitempty"`
	Examples       []Example `yaml:"examples"        json:"examples,omitempty"`
	Constraints    []string  `yaml:"constraints"     json:"constraints,omitempty"`
	StarterCode    string    `yaml:"starter_code"    json:"starterCode,omitempty"`

	// Solution is a reference answer used by tests and `codebuddy validate`.
	Solution string `yaml:"solution" json:"-"`
	Checker  string `yaml:"checker"  json:"-"`
}

// Playable reports whether the problem can be submitted for validation.
func (d *Definition) Playable() bool {
	return d.Checker != ""
}

// Timeout returns the per-problem deadline, or zero for the validator default.
func (d *Definition) Timeout() time.Duration {
	if d.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

// Metadata returns the row stored in the problems table.
func (d *Definition) Metadata() model.Problem {
	return model.Problem{
		ID:         d.ID,
		Title:      d.Title,
		Category:   d.Category,
		Difficulty: d.Difficulty,
		Order:      d.Order,
		VideoID:    d.VideoID,
		Link:       d.Link,
	}
}

// ExtractFunction drops everything before the function prefix so that
// leading comments cannot change how the source is evaluated.
func (d *Definition) ExtractFunction(code string) (string, error) {
	if !d.Playable() {
		return "", apperror.ValidationFailed("problem", fmt.Sprintf("problem %s cannot be submitted", d.ID))
	}
	i := strings.Index(code, d.FunctionPrefix)
	if i < 0 {
		return "", apperror.ValidationFailed("code", d.FunctionPrefix+"... is missing")
	}
	return code[i:], nil
}

func (d *Definition) validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("missing id")
	case d.Title == "":
		return fmt.Errorf("%s: missing title", d.ID)
	case d.Order <= 0:
		return fmt.Errorf("%s: order must be positive", d.ID)
	}
	switch d.Difficulty {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		return fmt.Errorf("%s: unknown difficulty %q", d.ID, d.Difficulty)
	}
	if d.Link == "" && d.Checker == "" {
		return fmt.Errorf("%s: needs a checker or a link", d.ID)
	}
	if d.Checker != "" && d.FunctionPrefix == "" {
		return fmt.Errorf("%s: checker without function_prefix", d.ID)
	}
	return nil
}

// Catalog is an immutable, ordered set of definitions.
type Catalog struct {
	byID    map[string]*Definition
	ordered []*Definition
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	sub, err := fs.Sub(builtin, "catalog")
	if err != nil {
		return nil, err
	}
	return Parse(sub)
}

// Parse reads every *.yaml file at the root of fsys.
func Parse(fsys fs.FS) (*Catalog, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("problem: listing catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]*Definition, len(names))}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("problem: reading %s: %w", name, err)
		}

		var d Definition
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("problem: parsing %s: %w", name, err)
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("problem: %s: %w", name, err)
		}
		if want := strings.TrimSuffix(path.Base(name), ".yaml"); d.ID != want {
			return nil, fmt.Errorf("problem: %s declares id %q", name, d.ID)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("problem: duplicate id %q", d.ID)
		}
		c.byID[d.ID] = &d
		c.ordered = append(c.ordered, &d)
	}

	sort.SliceStable(c.ordered, func(i, j int) bool {
		return c.ordered[i].Order < c.ordered[j].Order
	})
	return c, nil
}

// Lookup returns the definition with the given id.
func (c *Catalog) Lookup(id string) (*Definition, error) {
	d, ok := c.byID[id]
	if !ok {
		return nil, apperror.NotFound("problem", id)
	}
	return d, nil
}

// All returns every definition ordered by Order.
func (c *Catalog) All() []*Definition {
	out := make([]*Definition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.ordered)
}
