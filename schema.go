package stepflow

import (
	"github.com/invopop/jsonschema"

	"github.com/formsmith/stepflow-go/markup"
)

// FieldSchema builds a JSON Schema describing the form's fields, for
// validation and summary collaborators that want a machine-readable view of
// what the form collects. Radio groups and selects become string enums,
// checkbox groups become string arrays, everything else a plain string.
// Fields marked required in markup land in the schema's required list.
func FieldSchema(doc *markup.Document) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: props,
	}

	seen := make(map[string]bool)
	for _, field := range doc.FieldsIn(doc.Root) {
		name := field.FieldName()
		if seen[name] {
			continue
		}
		seen[name] = true

		props.Set(name, fieldSchema(doc, field, name))
		if field.HasAttr("required") {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

func fieldSchema(doc *markup.Document, field *markup.Element, name string) *jsonschema.Schema {
	switch {
	case field.Tag == "input" && field.InputType() == "radio":
		return &jsonschema.Schema{Type: "string", Enum: groupValues(doc.RadioGroup(name))}

	case field.Tag == "input" && field.InputType() == "checkbox":
		group := doc.Root.FindAll(func(el *markup.Element) bool {
			return el.Tag == "input" && el.InputType() == "checkbox" && el.FieldName() == name
		})
		if len(group) > 1 {
			// A checkbox group collects an ordered list of values.
			return &jsonschema.Schema{
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string", Enum: groupValues(group)},
			}
		}
		return &jsonschema.Schema{Type: "string"}

	case field.Tag == "select":
		var enum []any
		for _, opt := range field.FindAll(func(el *markup.Element) bool { return el.Tag == "option" }) {
			if v := opt.Attr("value"); v != "" {
				enum = append(enum, v)
			}
		}
		return &jsonschema.Schema{Type: "string", Enum: enum}

	default:
		return &jsonschema.Schema{Type: "string"}
	}
}

func groupValues(group []*markup.Element) []any {
	var values []any
	for _, el := range group {
		if v := el.Attr("value"); v != "" {
			values = append(values, v)
		}
	}
	return values
}
