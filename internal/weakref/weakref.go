// Package weakref is the weak-reference lifecycle registry for
// ClassInstance disposal bookkeeping (spec §9 "Weak-reference
// finalizers": "long-lived instances register in a weak table whose
// sweep runs at factory disposal").
package weakref

import (
	"sync"

	"github.com/google/uuid"
)

// Token identifies one registered releaser.
type Token string

// Registry holds a release closure per live instance until either an
// explicit Release (the host finalizer firing early) or a Sweep (at
// factory disposal) runs it.
type Registry struct {
	mu        sync.Mutex
	releasers map[Token]func()
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{releasers: make(map[Token]func())}
}

// Register records release, to be invoked exactly once by Release or
// Sweep, and returns a Token identifying it.
func (r *Registry) Register(release func()) Token {
	t := Token(uuid.NewString())
	r.mu.Lock()
	r.releasers[t] = release
	r.mu.Unlock()
	return t
}

// Release runs and forgets the releaser for t, if still registered.
// Safe to call more than once; the second call is a no-op.
func (r *Registry) Release(t Token) {
	r.mu.Lock()
	fn, ok := r.releasers[t]
	delete(r.releasers, t)
	r.mu.Unlock()
	if ok {
		fn()
	}
}

// Sweep runs every still-registered releaser and empties the registry,
// for factory disposal.
func (r *Registry) Sweep() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.releasers))
	for _, fn := range r.releasers {
		fns = append(fns, fn)
	}
	r.releasers = make(map[Token]func())
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Len reports the number of still-registered releasers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.releasers)
}
