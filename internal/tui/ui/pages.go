package ui

import "github.com/rivo/tview"

// Pages is a stack of components on top of tview.Pages. Pushing starts a
// component, popping stops it, and the change callback sees the new stack.
type Pages struct {
	*tview.Pages
	stack    []Component
	onChange func(top Component, names []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
	}
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func(top Component, names []string)) {
	p.onChange = fn
}

// Push shows c above the current page and starts it.
func (p *Pages) Push(c Component) {
	if top := p.Top(); top != nil {
		p.HidePage(top.Name())
	}
	p.stack = append(p.stack, c)
	p.AddAndSwitchToPage(c.Name(), c, true)
	c.Start()
	p.notify()
}

// Pop stops and removes the top component and shows the one below. The
// bottom page is never popped. Returns the removed component or nil.
func (p *Pages) Pop() Component {
	if len(p.stack) < 2 {
		return nil
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	top.Stop()
	p.RemovePage(top.Name())

	current := p.stack[len(p.stack)-1]
	p.ShowPage(current.Name())
	p.SendToFront(current.Name())
	p.notify()
	return top
}

// Top returns the visible component, or nil.
func (p *Pages) Top() Component {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// Names returns the page names from bottom to top.
func (p *Pages) Names() []string {
	names := make([]string, len(p.stack))
	for i, c := range p.stack {
		names[i] = c.Name()
	}
	return names
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset stops every component and leaves c alone on the stack.
func (p *Pages) Reset(c Component) {
	for i := len(p.stack) - 1; i >= 0; i-- {
		p.stack[i].Stop()
		p.RemovePage(p.stack[i].Name())
	}
	p.stack = nil
	p.Push(c)
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Top(), p.Names())
	}
}
