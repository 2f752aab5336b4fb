package markup

// Renderer bridges engine decisions (show/hide, styling classes) to whatever
// the host actually renders. The engine only ever calls these two methods, so
// hosts with a live DOM can mirror mutations across, while tests and
// server-side hosts use ClassRenderer and read the element tree directly.
type Renderer interface {
	// SetVisible shows or hides the element subtree rooted at el.
	SetVisible(el *Element, visible bool)

	// SetClass adds or removes a styling class on el.
	SetClass(el *Element, class string, on bool)
}

// DefaultHiddenClass is the class ClassRenderer toggles alongside the hidden
// flag, for hosts that render visibility via CSS.
const DefaultHiddenClass = "hide"

// ClassRenderer is the default Renderer: it mutates the element tree in
// place, flipping the hidden flag and a hidden-marker class.
type ClassRenderer struct {
	// HiddenClass overrides DefaultHiddenClass when non-empty.
	HiddenClass string
}

func (r ClassRenderer) hiddenClass() string {
	if r.HiddenClass != "" {
		return r.HiddenClass
	}
	return DefaultHiddenClass
}

// SetVisible implements Renderer.
func (r ClassRenderer) SetVisible(el *Element, visible bool) {
	el.SetHidden(!visible)
	if visible {
		el.RemoveClass(r.hiddenClass())
	} else {
		el.AddClass(r.hiddenClass())
	}
}

// SetClass implements Renderer.
func (r ClassRenderer) SetClass(el *Element, class string, on bool) {
	if on {
		el.AddClass(class)
	} else {
		el.RemoveClass(class)
	}
}

var _ Renderer = ClassRenderer{}
