package classwrap

import (
	"testing"

	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/typeadapter"
)

func newTestCache(t *testing.T) (*Cache, *jnienv.Fake) {
	t.Helper()
	env := jnienv.NewFake()
	registry := typeadapter.NewRegistry()
	c := New(env, registry, nil, nil)
	return c, env
}

func TestUseReturnsSameWrapperIdentity(t *testing.T) {
	c, env := newTestCache(t)
	env.RegisterClass(&jnienv.FakeClass{Name: "com.example.Widget"})

	a, err := c.Use("com.example.Widget")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	b, err := c.Use("com/example/Widget")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if a != b {
		t.Fatalf("expected Use to return the same wrapper identity for the same class name")
	}
}

func TestCastPreservesHandleAndClassName(t *testing.T) {
	c, env := newTestCache(t)
	env.RegisterClass(&jnienv.FakeClass{Name: "com.example.Widget"})
	handle := env.NewInstance("com.example.Widget")

	inst1, err := c.Cast(handle, "com.example.Widget")
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if inst1.Handle() != handle {
		t.Fatalf("expected Cast to preserve the handle, got %v", inst1.Handle())
	}
	if inst1.ClassName() != "com.example.Widget" {
		t.Fatalf("expected class name com.example.Widget, got %s", inst1.ClassName())
	}
}

func TestSuperclassChainMemberFallthrough(t *testing.T) {
	c, env := newTestCache(t)
	env.RegisterClass(&jnienv.FakeClass{
		Name: "com.example.Base",
		Methods: []jnienv.ReflectedMethod{
			{Name: "greet", ReturnType: "java.lang.String"},
		},
	})
	env.RegisterClass(&jnienv.FakeClass{
		Name:  "com.example.Derived",
		Super: "com.example.Base",
	})

	w, err := c.Use("com.example.Derived")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if w.Parent == nil || w.Parent.Name != "com.example.Base" {
		t.Fatalf("expected Derived's wrapper to chain to Base")
	}

	group, owner, err := w.lookupMethodGroup("greet")
	if err != nil {
		t.Fatalf("lookupMethodGroup: %v", err)
	}
	if owner.Name != "com.example.Base" {
		t.Fatalf("expected greet to resolve on Base via the parent chain, got owner %s", owner.Name)
	}
	if group.Count() != 1 {
		t.Fatalf("expected exactly one greet overload, got %d", group.Count())
	}
}

func TestFieldGetSetRoundTrip(t *testing.T) {
	c, env := newTestCache(t)
	env.RegisterClass(&jnienv.FakeClass{
		Name: "com.example.Widget",
		Fields: []jnienv.ReflectedField{
			{Name: "count", Type: "int"},
		},
	})
	handle := env.NewInstance("com.example.Widget")

	w, err := c.Use("com.example.Widget")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	table, err := w.Members()
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	f := table.Fields["count"]
	if f == nil {
		t.Fatalf("expected a count field descriptor")
	}

	if err := c.SetField(f, handle, int32(7)); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	got, err := c.GetField(f, handle)
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if got != int32(7) {
		t.Fatalf("expected 7, got %v", got)
	}

	if err := c.SetField(f, handle, "x"); !jerr.Is(err, jerr.IncompatibleArgument) {
		t.Fatalf("expected IncompatibleArgument setting a string onto an int field, got %v", err)
	}
}

func TestAccessorMergesFieldAndMethodViews(t *testing.T) {
	c, env := newTestCache(t)
	env.RegisterClass(&jnienv.FakeClass{
		Name: "com.example.Widget",
		Methods: []jnienv.ReflectedMethod{
			{Name: "size", ReturnType: "int"},
		},
		Fields: []jnienv.ReflectedField{
			{Name: "size", Type: "int"},
		},
	})
	handle := env.NewInstance("com.example.Widget")

	w, err := c.Use("com.example.Widget")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	inst, err := c.Cast(handle, "com.example.Widget")
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}
	a, err := w.Accessor("size", inst, false)
	if err != nil {
		t.Fatalf("Accessor: %v", err)
	}
	if !a.CanCall() || !a.HasField() {
		t.Fatalf("expected size to merge both a field and a method view")
	}
}

func TestMethodReturningReceiverPreservesIdentity(t *testing.T) {
	c, env := newTestCache(t)
	env.RegisterClass(&jnienv.FakeClass{
		Name: "com.example.Widget",
		Methods: []jnienv.ReflectedMethod{
			{Name: "self", ReturnType: "com.example.Widget"},
		},
	})
	handle := env.NewInstance("com.example.Widget")

	w, err := c.Use("com.example.Widget")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	inst, err := c.Cast(handle, "com.example.Widget")
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}
	classInst, ok := inst.(*ClassInstance)
	if !ok {
		t.Fatalf("expected Cast to return a *ClassInstance, got %T", inst)
	}

	env.Invoke = func(class string, m jnienv.MethodID, direct bool, args []uint64) (uint64, error) {
		return uint64(handle), nil
	}

	d, err := w.Method("self", classInst, false)
	if err != nil {
		t.Fatalf("Method: %v", err)
	}
	out, err := d.Call(nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	outInst, ok := out.(*ClassInstance)
	if !ok {
		t.Fatalf("expected *ClassInstance, got %T", out)
	}
	if outInst != classInst {
		t.Fatalf("expected self() to return the same Instance identity as the receiver, got a distinct instance")
	}
}

func TestDisposeSweepsWeakReferenceRegistry(t *testing.T) {
	c, env := newTestCache(t)
	env.RegisterClass(&jnienv.FakeClass{Name: "com.example.Widget"})

	inst, err := c.Cast(env.NewInstance("com.example.Widget"), "com.example.Widget")
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}

	if err := c.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if c.weak.Len() != 0 {
		t.Fatalf("expected Dispose to sweep the weak-reference registry")
	}
	_ = inst
}
