// Package stepflow is a step-navigation and conditional-branching engine for
// multi-step forms. It reads a form definition (HTML markup or a YAML
// definition) into a plain-data element tree and runs the full step state
// machine over it: branch activation on input activity, declarative and
// imperative skip logic, show-if visibility, back/next navigation, and a
// typed event bus that lets validation and summary collaborators react
// without coupling to the navigator.
//
// The engine is DOM-independent: hosts feed it input events (Radio, Checkbox,
// Text) and render the mutated element tree however they like: mirroring
// into a browser DOM from WASM, server-side HTML, or a terminal wizard.
//
// # Wiring
//
//	doc, err := markup.ParseHTML(file)
//	eng := stepflow.New()
//	if err := eng.Init(doc); err != nil { ... }
//	eng.Radio("plan", "basic") // activates that radio's data-go-to branch
//	eng.Next()
//
// Collaborators subscribe on the bus:
//
//	eng.Bus().Subscribe(events.KindFieldChange, func(ev events.Event) { ... })
//
// All engine entry points are synchronous and must be driven from a single
// goroutine, matching the browser event-loop model the attribute contract was
// designed for. Invalid input (unknown step ids, out-of-range indices,
// malformed go-to targets) is logged and ignored; no public entry point
// panics on bad input.
package stepflow
