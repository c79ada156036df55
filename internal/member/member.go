// Package member implements Component C: enumerates declared methods,
// fields, and constructors from a class handle, grouping method
// overloads by simple name (spec §4.C) into the MemberDescriptor /
// OverloadGroup data model of spec §3.
package member

import (
	"sync"

	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/typeadapter"
)

// MethodKind classifies a Method descriptor.
type MethodKind int

const (
	Constructor MethodKind = iota
	StaticMethod
	InstanceMethod
)

// FieldKind classifies a Field descriptor.
type FieldKind int

const (
	StaticField FieldKind = iota
	InstanceField
)

// Method is the Method variant of MemberDescriptor (spec §3): a callable
// member with an opaque JNI method id, marshaled argument/return types,
// and the bookkeeping the Hooking Engine needs for install/restore and
// re-entry detection.
type Method struct {
	Name       string
	Kind       MethodKind
	ID         jnienv.MethodID
	DeclClass  jnienv.Ref // class that declared this member, for the direct/nonvirtual invoke path
	ReturnType *typeadapter.TypeAdapter
	ArgTypes   []*typeadapter.TypeAdapter
	IsVarArgs  bool
	Synthetic  bool // true for the synthetic valueOf overload

	mu           sync.Mutex
	hookState    any             // opaque snapshot owned by package hook
	replacement  any             // opaque installed-replacement handle owned by package hook
	pendingCalls map[uint64]bool // native thread ids currently inside the replacement body
}

// HookState returns the hook package's opaque restoration snapshot, or
// nil if the method has never been hooked.
func (m *Method) HookState() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hookState
}

// SetHookState installs the hook package's restoration snapshot.
func (m *Method) SetHookState(state any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hookState = state
}

// Replacement returns the currently installed replacement handle, or nil.
func (m *Method) Replacement() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replacement
}

// SetReplacement installs or clears (pass nil) the replacement handle.
func (m *Method) SetReplacement(r any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replacement = r
}

// IsHooked reports whether a replacement is currently installed.
func (m *Method) IsHooked() bool {
	return m.Replacement() != nil
}

// MarkEntering records that threadID has entered the replacement body,
// for the per-method pending-calls set of spec §5.
func (m *Method) MarkEntering(threadID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingCalls == nil {
		m.pendingCalls = make(map[uint64]bool)
	}
	m.pendingCalls[threadID] = true
}

// MarkExiting removes threadID from the pending-calls set.
func (m *Method) MarkExiting(threadID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pendingCalls, threadID)
}

// IsReentrant reports whether threadID is currently inside this
// method's replacement body, meaning an invocation from that thread
// must route to the original implementation (spec §4.E / §5).
func (m *Method) IsReentrant(threadID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingCalls[threadID]
}

// Field is the Field variant of MemberDescriptor.
type Field struct {
	Name      string
	Kind      FieldKind
	ID        jnienv.FieldID
	DeclClass jnienv.Ref
	Type      *typeadapter.TypeAdapter
}

// OverloadGroup is the per-member-name mapping of arity to ordered
// Method lists (spec §3).
type OverloadGroup struct {
	Name    string
	ByArity map[int][]*Method
}

func newOverloadGroup(name string) *OverloadGroup {
	return &OverloadGroup{Name: name, ByArity: make(map[int][]*Method)}
}

// Add appends m to the bucket for its arity, preserving declaration
// order (selection within a bucket is first-match, per spec §3).
func (g *OverloadGroup) Add(m *Method) {
	g.ByArity[len(m.ArgTypes)] = append(g.ByArity[len(m.ArgTypes)], m)
}

// Count returns the total number of overloads across all arities.
func (g *OverloadGroup) Count() int {
	n := 0
	for _, ms := range g.ByArity {
		n += len(ms)
	}
	return n
}

// Table is the full set of members materialized for one class, built
// once and never mutated thereafter except by hook install/uninstall on
// a Method descriptor (spec §3 invariant).
type Table struct {
	Methods   map[string]*OverloadGroup // instance + static methods, by name
	NewCtors  *OverloadGroup            // constructors that allocate+init, for $new
	InitCtors *OverloadGroup            // constructors that only init, for $init
	Fields    map[string]*Field
}
