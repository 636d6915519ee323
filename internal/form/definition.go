// internal/form/definition.go
//
// Ponyracer – Forms subsystem: YAML definition loader.
//
// Context
//   Each form is declared in a YAML file: identifier, title, submit label,
//   and an ordered field list.  Each field names its input type, label, and
//   rule string (“required|min:3”).  Definitions are parsed once at startup
//   from an fs.FS (usually embedded) into a Definitions set, and every
//   mounted Form is built from one of them.
//
// Workflow
//   •  LoadDefinition parses a single YAML document and validates it, first
//      with struct tags, then with structural checks tags cannot express
//      (duplicate names, rule syntax, “@field” targets).
//   •  LoadDefinitions walks a directory of “*.yaml” files.
//   •  Definition.NewForm converts the field list into FieldSpecs, overlays
//      runtime initial values, and builds a Form.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// Definition is one form loaded from YAML.
type Definition struct {
	ID     string     `yaml:"id"     validate:"required"`
	Title  string     `yaml:"title"`
	Submit string     `yaml:"submit" validate:"required"` // Submit button label.
	Fields []FieldDef `yaml:"fields" validate:"required,min=1,dive"`
}

// FieldDef describes a single input control.
type FieldDef struct {
	Name         string `yaml:"name"         validate:"required"`
	Label        string `yaml:"label"        validate:"required"`
	Type         string `yaml:"type"         validate:"required,oneof=text password number email"`
	Placeholder  string `yaml:"placeholder"`
	Autocomplete string `yaml:"autocomplete"`
	Rules        string `yaml:"rules"`   // Pipe syntax, e.g. “required|min:3”.
	Initial      any    `yaml:"initial"` // Optional static initial value.

	rules []RuleRef
}

// ParsedRules returns the rules parsed at load time.
func (fd FieldDef) ParsedRules() []RuleRef { return fd.rules }

// Field returns the definition of name.
func (d *Definition) Field(name string) (FieldDef, bool) {
	for _, fd := range d.Fields {
		if fd.Name == name {
			return fd, true
		}
	}
	return FieldDef{}, false
}

// NewForm builds a Form for d.  initial overrides the YAML initial values by
// field name; unknown names are an error.
func (d *Definition) NewForm(reg *Registry, initial map[string]any) (*Form, error) {
	for name := range initial {
		if _, ok := d.Field(name); !ok {
			return nil, fmt.Errorf("form %s: initial value for %w %q", d.ID, ErrUnknownField, name)
		}
	}

	specs := make([]FieldSpec, 0, len(d.Fields))
	for _, fd := range d.Fields {
		init := fd.Initial
		if v, ok := initial[fd.Name]; ok {
			init = v
		}
		if init == nil {
			init = ""
		}
		specs = append(specs, FieldSpec{Name: fd.Name, Initial: init, Rules: fd.rules})
	}
	f, err := NewForm(reg, specs)
	if err != nil {
		return nil, fmt.Errorf("form %s: %w", d.ID, err)
	}
	return f, nil
}

// -----------------------------------------------------------------------------
// Definition set
// -----------------------------------------------------------------------------

// Definitions maps form ID → *Definition.  Guarded by mutex.
type Definitions struct {
	mu   sync.RWMutex
	byID map[string]*Definition
}

// NewDefinitions returns an empty set.
func NewDefinitions() *Definitions {
	return &Definitions{byID: make(map[string]*Definition)}
}

// Add inserts or replaces d.
func (s *Definitions) Add(d *Definition) {
	s.mu.Lock()
	s.byID[d.ID] = d
	s.mu.Unlock()
}

// Get returns the definition called id.
func (s *Definitions) Get(id string) (*Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	return d, ok
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

var defValidator = validator.New()

// LoadDefinition parses and validates one YAML document.
func LoadDefinition(raw []byte, source string) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", source, err)
	}
	if err := defValidator.Struct(&d); err != nil {
		return nil, fmt.Errorf("form definition %s: %w", source, err)
	}
	if err := checkDefinition(&d, source); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDefinitions reads every “*.yaml” under dir in fsys.
func LoadDefinitions(fsys fs.FS, dir string) (*Definitions, error) {
	set := NewDefinitions()
	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || path.Ext(p) != ".yaml" {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read form file %s: %w", p, err)
		}
		def, err := LoadDefinition(raw, p)
		if err != nil {
			return err
		}
		if _, dup := set.Get(def.ID); dup {
			return fmt.Errorf("form definition %s: duplicate id %q", p, def.ID)
		}
		set.Add(def)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(set.byID) == 0 {
		return nil, errors.New("LoadDefinitions: no form definitions found")
	}
	return set, nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

// checkDefinition enforces rules struct tags cannot express and caches the
// parsed rules on each field.
func checkDefinition(d *Definition, source string) error {
	names := make(map[string]struct{}, len(d.Fields))
	for i := range d.Fields {
		fd := &d.Fields[i]
		if _, dup := names[fd.Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", source, fd.Name)
		}
		names[fd.Name] = struct{}{}

		switch fd.Initial.(type) {
		case nil, string, int, float64, bool:
		default:
			return fmt.Errorf("form %s: field '%s': initial must be a scalar, got %T", source, fd.Name, fd.Initial)
		}

		refs, err := ParseRules(fd.Rules)
		if err != nil {
			return fmt.Errorf("form %s: field '%s': %w", source, fd.Name, err)
		}
		fd.rules = refs
	}

	for _, fd := range d.Fields {
		for _, ref := range fd.rules {
			for _, p := range ref.Params {
				if target, ok := strings.CutPrefix(p, "@"); ok {
					if _, known := names[target]; !known {
						return fmt.Errorf("form %s: field '%s' rule %s references unknown field '%s'", source, fd.Name, ref, target)
					}
				}
			}
		}
	}
	return nil
}
