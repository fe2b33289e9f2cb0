package tree

import "github.com/driftbox/driftbox/internal/models"

// Navigation is the stack of folders the user opened. The bottom of the
// stack is always root.
type Navigation struct {
	stack []models.Path
}

// NewNavigation starts at root.
func NewNavigation() *Navigation {
	return &Navigation{stack: []models.Path{models.Root()}}
}

// Current returns the folder on top of the stack.
func (n *Navigation) Current() models.Path {
	return n.stack[len(n.stack)-1]
}

// Push opens the child folder name of the current folder.
func (n *Navigation) Push(name string) models.Path {
	next := n.Current().Child(name)
	n.stack = append(n.stack, next)
	return next
}

// Pop returns to the previous folder. It reports false at root.
func (n *Navigation) Pop() bool {
	if len(n.stack) == 1 {
		return false
	}
	n.stack = n.stack[:len(n.stack)-1]
	return true
}

// Depth returns how many folders deep the user is.
func (n *Navigation) Depth() int {
	return len(n.stack) - 1
}

// Reset returns to root and forgets the history.
func (n *Navigation) Reset() {
	n.stack = n.stack[:1]
}

// Selection is the item the user last selected, if any.
type Selection struct {
	ref models.Ref
	set bool
}

// Select records ref as selected.
func (s *Selection) Select(ref models.Ref) {
	s.ref = ref
	s.set = true
}

// Clear drops the selection.
func (s *Selection) Clear() {
	s.ref = models.Ref{}
	s.set = false
}

// Get returns the selected item.
func (s *Selection) Get() (models.Ref, bool) {
	return s.ref, s.set
}
