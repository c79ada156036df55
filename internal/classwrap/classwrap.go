// Package classwrap implements Component B, the Class Cache & Wrapper
// Factory: a name-to-wrapper map that constructs each Java class
// wrapper exactly once and materializes its members lazily (spec §4.B,
// §3).
package classwrap

import (
	"strings"
	"sync"

	"github.com/halvard/jbridge/internal/dispatch"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/typeadapter"
	"github.com/halvard/jbridge/internal/weakref"
)

// ClassWrapper holds a globally pinned reference to a Java Class
// object, its fully-qualified name, its lazily-built member table, and
// its parent wrapper for prototype-chained member lookup (spec §3).
type ClassWrapper struct {
	Ref   jnienv.Ref
	Name  string
	Parent *ClassWrapper

	cache *Cache
	mu    sync.Mutex
	table *member.Table
}

// Members returns this wrapper's member table, resolving it on first
// access and never again thereafter (spec §3 invariant).
func (w *ClassWrapper) Members() (*member.Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.table != nil {
		return w.table, nil
	}
	t, err := member.Resolve(w.cache.env, w.cache.registry, w.Ref)
	if err != nil {
		return nil, err
	}
	w.table = t
	return t, nil
}

// lookupMethodGroup walks this wrapper then its parent chain for the
// first OverloadGroup named name.
func (w *ClassWrapper) lookupMethodGroup(name string) (*member.OverloadGroup, *ClassWrapper, error) {
	t, err := w.Members()
	if err != nil {
		return nil, nil, err
	}
	if g, ok := t.Methods[name]; ok {
		return g, w, nil
	}
	if w.Parent != nil {
		return w.Parent.lookupMethodGroup(name)
	}
	return nil, nil, jerr.New(jerr.NoSuchMember, "no method named %s on %s or its superclasses", name, w.Name)
}

// lookupField walks this wrapper then its parent chain for the first
// Field named name.
func (w *ClassWrapper) lookupField(name string) (*member.Field, *ClassWrapper, error) {
	t, err := w.Members()
	if err != nil {
		return nil, nil, err
	}
	if f, ok := t.Fields[name]; ok {
		return f, w, nil
	}
	if w.Parent != nil {
		return w.Parent.lookupField(name)
	}
	return nil, nil, jerr.New(jerr.NoSuchMember, "no field named %s on %s or its superclasses", name, w.Name)
}

// Method returns a Dispatcher bound to name, on receiver (nil for a
// class-level/static-only view).
func (w *ClassWrapper) Method(name string, receiver typeadapter.Instance, classOnly bool) (*dispatch.Dispatcher, error) {
	group, owner, err := w.lookupMethodGroup(name)
	if err != nil {
		return nil, err
	}
	var ref jnienv.Ref
	if receiver != nil {
		ref = receiver.Handle()
	}
	return dispatch.New(name, dispatch.ModeMethod, group, w.cache.env, w.cache.registry, w.cache, w.cache.hooks,
		ref, receiver, owner.Ref, owner.Name, classOnly), nil
}

// Accessor returns the merged field/method view for name (spec §4.C:
// "the returned accessor object exposes both .value (field) and
// callable semantics (method)").
func (w *ClassWrapper) Accessor(name string, receiver typeadapter.Instance, classOnly bool) (*Accessor, error) {
	var a Accessor
	if d, err := w.Method(name, receiver, classOnly); err == nil {
		a.dispatcher = d
	}
	if f, owner, err := w.lookupField(name); err == nil {
		a.field = f
		a.fieldOwner = owner
		if receiver != nil {
			a.receiver = receiver.Handle()
		}
		a.cache = w.cache
	}
	if a.dispatcher == nil && a.field == nil {
		return nil, jerr.New(jerr.NoSuchMember, "no member named %s on %s", name, w.Name)
	}
	return &a, nil
}

// New invokes the constructor dispatcher (the wrapper's `$new`).
func (w *ClassWrapper) New(args []any) (*ClassInstance, error) {
	t, err := w.Members()
	if err != nil {
		return nil, err
	}
	d := dispatch.New("$new", dispatch.ModeNewConstructor, t.NewCtors, w.cache.env, w.cache.registry, w.cache, w.cache.hooks,
		0, nil, w.Ref, w.Name, true)
	result, err := d.Call(args)
	if err != nil {
		return nil, err
	}
	inst, _ := result.(*ClassInstance)
	return inst, nil
}

// Alloc calls AllocObject without running any constructor (the
// wrapper's `$alloc`).
func (w *ClassWrapper) Alloc() (*ClassInstance, error) {
	ref, err := w.cache.env.AllocObject(w.Ref)
	if err != nil {
		return nil, jerr.New(jerr.OutOfMemory, "alloc %s: %v", w.Name, err)
	}
	return w.cache.wrap(ref, w)
}

// Init runs an `<init>` overload on an already-allocated instance (the
// wrapper's `$init`).
func (w *ClassWrapper) Init(inst *ClassInstance, args []any) error {
	t, err := w.Members()
	if err != nil {
		return err
	}
	d := dispatch.New("$init", dispatch.ModeInitConstructor, t.InitCtors, w.cache.env, w.cache.registry, w.cache, w.cache.hooks,
		inst.ref, inst, w.Ref, w.Name, false)
	_, err = d.Call(args)
	return err
}

// ClassAttr exposes the wrapper's own pinned java.lang.Class handle
// (the `class` property).
func (w *ClassWrapper) ClassAttr() jnienv.Ref { return w.Ref }

// ClassInstance holds a globally pinned reference to a Java instance,
// a back-pointer to its wrapper, and the weak-reference token that
// releases the pinned handle on disposal (spec §3).
type ClassInstance struct {
	ref     jnienv.Ref
	wrapper *ClassWrapper
	token   weakref.Token
}

// Handle satisfies typeadapter.Instance.
func (i *ClassInstance) Handle() jnienv.Ref { return i.ref }

// ClassName satisfies typeadapter.Instance, and is also the `$className`
// property.
func (i *ClassInstance) ClassName() string { return i.wrapper.Name }

// Wrapper returns the ClassInstance's back-pointer.
func (i *ClassInstance) Wrapper() *ClassWrapper { return i.wrapper }

// IsSameObject is the `$isSameObject` operation.
func (i *ClassInstance) IsSameObject(other *ClassInstance) bool {
	if other == nil {
		return false
	}
	return i.wrapper.cache.env.IsSameObject(i.ref, other.ref)
}

// Dispose releases this instance's pinned reference ahead of factory
// disposal, for a host that can detect early unreachability.
func (i *ClassInstance) Dispose() {
	i.wrapper.cache.weak.Release(i.token)
}

// dotted normalizes a slash- or dot-form class name to dotted form.
func dotted(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// slashed normalizes a dotted class name to the slash form FindClass
// expects.
func slashed(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}
