package identity

// Scope issues handles for a single request. Every structural mutation of the
// host tree must be followed by Advance, which expires all handles issued so
// far. A Scope is not safe for concurrent use.
type Scope struct {
	name   string
	gen    uint64
	closed bool
}

// NewScope creates a scope. The name only appears in diagnostics.
func NewScope(name string) *Scope {
	return &Scope{name: name}
}

// Name returns the scope's diagnostic name.
func (s *Scope) Name() string {
	return s.name
}

// Issue wraps a host token in a handle valid for the current generation.
func (s *Scope) Issue(token string) Handle {
	return Handle{token: token, gen: s.gen, scope: s}
}

// Advance records a structural mutation and expires every outstanding handle.
func (s *Scope) Advance() {
	s.gen++
}

// Generation returns the number of mutations recorded so far.
func (s *Scope) Generation() uint64 {
	return s.gen
}

// Close expires every handle for good. Issue still works but its handles are
// unusable, so a closed scope cannot leak tokens into a later request.
func (s *Scope) Close() {
	s.closed = true
}

// Owns reports whether h was issued by this scope.
func (s *Scope) Owns(h Handle) bool {
	return h.scope == s
}
