// Package markup models a form document as a plain-data element tree. The
// engine never touches a live DOM: hosts parse their markup (HTML via
// ParseHTML, or a YAML form definition via ParseYAML) into a Document, the
// engine mutates visibility and classes on the tree, and the host renders the
// result however it likes.
//
// The data-attribute contract is preserved verbatim from the markup the
// library was designed against, so existing forms keep working:
//
//	data-form="step"        marks a step container
//	data-form="step-item"   marks a nested step-item
//	data-answer             the step's own identifier
//	data-go-to              branch target on an input/select/textarea
//	data-show-if            condition expression controlling visibility
//	data-skip-if et al.     declarative skip-rule configuration
package markup

import "strings"

// Attribute names consumed by the engine. Exact strings are load-bearing:
// they match the attributes existing form markup already carries.
const (
	AttrForm             = "data-form"
	AttrGoTo             = "data-go-to"
	AttrAnswer           = "data-answer"
	AttrShowIf           = "data-show-if"
	AttrFieldName        = "data-step-field-name"
	AttrSkipIf           = "data-skip-if"
	AttrSkipUnless       = "data-skip-unless"
	AttrSkipTo           = "data-skip-to"
	AttrSkipReason       = "data-skip-reason"
	AttrAllowSkipUndo    = "data-allow-skip-undo"
	AttrSkip             = "data-skip"
	AttrSkipSection      = "data-skip-section"
	AttrStepType         = "data-step-type"
	AttrStepSubtype      = "data-step-subtype"
	AttrStepNumber       = "data-step-number"
	AttrInputActiveClass = "fs-inputactive-class"
	AttrRequiredSubtype  = "data-required-subtype"
)

// Values of the data-form role attribute.
const (
	RoleStep     = "step"
	RoleStepItem = "step-item"
	RoleNext     = "next"
	RoleBack     = "back"
	RoleSubmit   = "submit"
)

// Element is one node of the parsed form tree. It carries only plain data:
// tag name, attributes, children, and the visibility flag the engine toggles.
type Element struct {
	Tag      string
	Text     string
	Children []*Element

	attrs  map[string]string
	parent *Element
	hidden bool
}

// NewElement constructs a detached element with the given tag and attribute
// pairs (alternating name, value).
func NewElement(tag string, attrPairs ...string) *Element {
	el := &Element{Tag: tag, attrs: make(map[string]string)}
	for i := 0; i+1 < len(attrPairs); i += 2 {
		el.attrs[attrPairs[i]] = attrPairs[i+1]
	}
	return el
}

// Attr returns the value of the named attribute, or "" if absent.
func (el *Element) Attr(name string) string { return el.attrs[name] }

// HasAttr reports whether the named attribute is present, even if empty.
func (el *Element) HasAttr(name string) bool {
	_, ok := el.attrs[name]
	return ok
}

// SetAttr sets or replaces an attribute.
func (el *Element) SetAttr(name, value string) {
	if el.attrs == nil {
		el.attrs = make(map[string]string)
	}
	el.attrs[name] = value
}

// RemoveAttr deletes an attribute if present.
func (el *Element) RemoveAttr(name string) { delete(el.attrs, name) }

// Parent returns the enclosing element, or nil at the root.
func (el *Element) Parent() *Element { return el.parent }

// AppendChild attaches child as the last child of el.
func (el *Element) AppendChild(child *Element) {
	child.parent = el
	el.Children = append(el.Children, child)
}

// Hidden reports whether the engine has hidden this element. Ancestor
// visibility is not consulted; hosts hide a subtree by its root.
func (el *Element) Hidden() bool { return el.hidden }

// SetHidden flips the element's visibility flag.
func (el *Element) SetHidden(hidden bool) { el.hidden = hidden }

// Classes returns the element's class list.
func (el *Element) Classes() []string {
	raw := el.attrs["class"]
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// HasClass reports whether the class list contains name.
func (el *Element) HasClass(name string) bool {
	for _, c := range el.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

// AddClass appends name to the class list if not already present.
func (el *Element) AddClass(name string) {
	if name == "" || el.HasClass(name) {
		return
	}
	classes := append(el.Classes(), name)
	el.SetAttr("class", strings.Join(classes, " "))
}

// RemoveClass removes name from the class list.
func (el *Element) RemoveClass(name string) {
	classes := el.Classes()
	out := classes[:0]
	for _, c := range classes {
		if c != name {
			out = append(out, c)
		}
	}
	el.SetAttr("class", strings.Join(out, " "))
}

// Walk visits el and every descendant in document order. Returning false from
// fn stops the walk.
func (el *Element) Walk(fn func(*Element) bool) bool {
	if !fn(el) {
		return false
	}
	for _, c := range el.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Find returns the first element (in document order, including el itself)
// matching pred, or nil.
func (el *Element) Find(pred func(*Element) bool) *Element {
	var found *Element
	el.Walk(func(e *Element) bool {
		if pred(e) {
			found = e
			return false
		}
		return true
	})
	return found
}

// FindAll returns every element matching pred in document order.
func (el *Element) FindAll(pred func(*Element) bool) []*Element {
	var out []*Element
	el.Walk(func(e *Element) bool {
		if pred(e) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Closest walks up the parent chain (starting at el) and returns the first
// element matching pred, or nil.
func (el *Element) Closest(pred func(*Element) bool) *Element {
	for e := el; e != nil; e = e.parent {
		if pred(e) {
			return e
		}
	}
	return nil
}

// Role returns the element's data-form role, if any.
func (el *Element) Role() string { return el.attrs[AttrForm] }

// IsInput reports whether the element is a form input of any kind.
func (el *Element) IsInput() bool {
	switch el.Tag {
	case "input", "select", "textarea":
		return true
	}
	return false
}

// InputType returns the input's type attribute ("" for select/textarea).
func (el *Element) InputType() string { return el.attrs["type"] }

// FieldName resolves the field name of an input: the native name attribute,
// falling back to data-step-field-name.
func (el *Element) FieldName() string {
	if name := el.attrs["name"]; name != "" {
		return name
	}
	return el.attrs[AttrFieldName]
}

// StepEl returns the enclosing step element, or nil if el is outside any step.
func (el *Element) StepEl() *Element {
	return el.Closest(func(e *Element) bool { return e.Role() == RoleStep })
}

// Document is a parsed form tree with query helpers over it.
type Document struct {
	Root *Element
}

// Steps returns the step containers in document order. Step-items are not
// included; they belong to their enclosing step.
func (d *Document) Steps() []*Element {
	return d.Root.FindAll(func(e *Element) bool { return e.Role() == RoleStep })
}

// StepItems returns the step-item elements nested inside step.
func (d *Document) StepItems(step *Element) []*Element {
	return step.FindAll(func(e *Element) bool { return e != step && e.Role() == RoleStepItem })
}

// FindAnswer returns the step or step-item whose data-answer equals id.
func (d *Document) FindAnswer(id string) *Element {
	if id == "" {
		return nil
	}
	return d.Root.Find(func(e *Element) bool { return e.Attr(AttrAnswer) == id })
}

// RadioGroup returns every radio input in the document sharing name.
func (d *Document) RadioGroup(name string) []*Element {
	return d.Root.FindAll(func(e *Element) bool {
		return e.Tag == "input" && e.InputType() == "radio" && e.FieldName() == name
	})
}

// FieldsIn returns the named input elements inside root (inclusive).
func (d *Document) FieldsIn(root *Element) []*Element {
	return root.FindAll(func(e *Element) bool { return e.IsInput() && e.FieldName() != "" })
}

// FieldNamesIn returns the distinct field names declared inside root, in
// document order.
func (d *Document) FieldNamesIn(root *Element) []string {
	seen := make(map[string]bool)
	var names []string
	for _, f := range d.FieldsIn(root) {
		name := f.FieldName()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Conditionals returns every element carrying a data-show-if expression.
func (d *Document) Conditionals() []*Element {
	return d.Root.FindAll(func(e *Element) bool { return e.HasAttr(AttrShowIf) })
}

// Controls returns navigation controls with the given role (next, back,
// submit).
func (d *Document) Controls(role string) []*Element {
	return d.Root.FindAll(func(e *Element) bool { return e.Role() == role })
}

// SkipTriggers returns elements carrying a data-skip attribute.
func (d *Document) SkipTriggers() []*Element {
	return d.Root.FindAll(func(e *Element) bool { return e.HasAttr(AttrSkip) })
}
