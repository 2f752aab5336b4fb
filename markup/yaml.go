package markup

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// FormDef is the YAML form-definition shape accepted by ParseYAML. It exists
// for hosts that define their form programmatically instead of shipping HTML
// markup; the result is the same Document the HTML parser produces, so the
// engine treats both identically.
type FormDef struct {
	Steps []StepDef `yaml:"steps"`
}

// StepDef defines one step and its contents.
type StepDef struct {
	ID      string     `yaml:"id"`
	Type    string     `yaml:"type,omitempty"`
	Subtype string     `yaml:"subtype,omitempty"`
	Number  string     `yaml:"number,omitempty"`
	ShowIf  string     `yaml:"show_if,omitempty"`
	Skip    *SkipDef   `yaml:"skip,omitempty"`
	Fields  []FieldDef `yaml:"fields,omitempty"`
	Items   []ItemDef  `yaml:"items,omitempty"`
}

// SkipDef mirrors the declarative skip attributes of a step.
type SkipDef struct {
	If        string `yaml:"if,omitempty"`
	Unless    string `yaml:"unless,omitempty"`
	To        string `yaml:"to,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
	AllowUndo *bool  `yaml:"allow_undo,omitempty"`
}

// FieldDef defines one input inside a step or step-item.
type FieldDef struct {
	Name  string `yaml:"name"`
	Input string `yaml:"input,omitempty"` // radio, checkbox, text, select, textarea
	Value string `yaml:"value,omitempty"`
	GoTo  string `yaml:"go_to,omitempty"`
}

// ItemDef defines a step-item nested inside a step.
type ItemDef struct {
	ID      string     `yaml:"id"`
	Subtype string     `yaml:"subtype,omitempty"`
	Fields  []FieldDef `yaml:"fields,omitempty"`
}

// ParseYAML decodes a YAML form definition and builds the equivalent element
// tree. Strict decoding: unknown keys are an error so typos in definitions
// surface at load time rather than as silently missing behavior.
func ParseYAML(data []byte) (*Document, error) {
	var def FormDef
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parse form definition: %w", err)
	}
	return BuildDocument(def)
}

// BuildDocument converts an already-decoded FormDef into a Document.
func BuildDocument(def FormDef) (*Document, error) {
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("form definition has no steps")
	}
	root := NewElement("form")
	for i, sd := range def.Steps {
		if sd.ID == "" {
			return nil, fmt.Errorf("step %d: missing id", i)
		}
		step := NewElement("div", AttrForm, RoleStep, AttrAnswer, sd.ID)
		if sd.Type != "" {
			step.SetAttr(AttrStepType, sd.Type)
		}
		if sd.Subtype != "" {
			step.SetAttr(AttrStepSubtype, sd.Subtype)
		}
		if sd.Number != "" {
			step.SetAttr(AttrStepNumber, sd.Number)
		}
		if sd.ShowIf != "" {
			step.SetAttr(AttrShowIf, sd.ShowIf)
		}
		if sd.Skip != nil {
			applySkipDef(step, sd.Skip)
		}
		for _, fd := range sd.Fields {
			el, err := buildField(fd)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", sd.ID, err)
			}
			step.AppendChild(el)
		}
		for _, it := range sd.Items {
			if it.ID == "" {
				return nil, fmt.Errorf("step %q: step-item missing id", sd.ID)
			}
			item := NewElement("div", AttrForm, RoleStepItem, AttrAnswer, it.ID)
			if it.Subtype != "" {
				item.SetAttr(AttrStepSubtype, it.Subtype)
			}
			for _, fd := range it.Fields {
				el, err := buildField(fd)
				if err != nil {
					return nil, fmt.Errorf("step-item %q: %w", it.ID, err)
				}
				item.AppendChild(el)
			}
			step.AppendChild(item)
		}
		root.AppendChild(step)
	}
	return &Document{Root: root}, nil
}

func applySkipDef(step *Element, skip *SkipDef) {
	if skip.If != "" {
		step.SetAttr(AttrSkipIf, skip.If)
	}
	if skip.Unless != "" {
		step.SetAttr(AttrSkipUnless, skip.Unless)
	}
	if skip.To != "" {
		step.SetAttr(AttrSkipTo, skip.To)
	}
	if skip.Reason != "" {
		step.SetAttr(AttrSkipReason, skip.Reason)
	}
	if skip.AllowUndo != nil && !*skip.AllowUndo {
		step.SetAttr(AttrAllowSkipUndo, "false")
	}
}

func buildField(fd FieldDef) (*Element, error) {
	if fd.Name == "" {
		return nil, fmt.Errorf("field missing name")
	}
	var el *Element
	switch fd.Input {
	case "select":
		el = NewElement("select", "name", fd.Name)
	case "textarea":
		el = NewElement("textarea", "name", fd.Name)
	case "radio", "checkbox":
		el = NewElement("input", "name", fd.Name, "type", fd.Input)
		if fd.Value != "" {
			el.SetAttr("value", fd.Value)
		}
	case "", "text":
		el = NewElement("input", "name", fd.Name, "type", "text")
	default:
		el = NewElement("input", "name", fd.Name, "type", fd.Input)
	}
	if fd.GoTo != "" {
		el.SetAttr(AttrGoTo, fd.GoTo)
	}
	return el, nil
}
