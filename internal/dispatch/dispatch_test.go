package dispatch

import (
	"testing"

	"github.com/halvard/jbridge/internal/hook"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/typeadapter"
	"github.com/halvard/jbridge/internal/vmapi"
)

type stubHost struct {
	classRef jnienv.Ref
}

func (h stubHost) Cast(handle jnienv.Ref, className string) (typeadapter.Instance, error) {
	if handle == 0 {
		return nil, nil
	}
	return stubInstance{handle: handle, className: className}, nil
}

func (h stubHost) ResolveClass(className string) (jnienv.Ref, error) {
	return h.classRef, nil
}

type stubInstance struct {
	handle    jnienv.Ref
	className string
}

func (i stubInstance) Handle() jnienv.Ref { return i.handle }
func (i stubInstance) ClassName() string  { return i.className }

func newRegistry(t *testing.T, classRef jnienv.Ref) *typeadapter.Registry {
	t.Helper()
	r := typeadapter.NewRegistry()
	r.SetHost(stubHost{classRef: classRef})
	return r
}

func mustLookup(t *testing.T, r *typeadapter.Registry, name string) *typeadapter.TypeAdapter {
	t.Helper()
	a, err := r.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", name, err)
	}
	return a
}

func TestOverloadSelectionByArityAndType(t *testing.T) {
	env := jnienv.NewFake()
	registry := newRegistry(t, 0x1000)
	intT := mustLookup(t, registry, "int")
	strT := mustLookup(t, registry, "java.lang.String")

	mInt := &member.Method{Name: "m", Kind: member.InstanceMethod, ID: 1, ArgTypes: []*typeadapter.TypeAdapter{intT}, ReturnType: intT}
	mStr := &member.Method{Name: "m", Kind: member.InstanceMethod, ID: 2, ArgTypes: []*typeadapter.TypeAdapter{strT}, ReturnType: intT}
	group := &member.OverloadGroup{Name: "m", ByArity: map[int][]*member.Method{1: {mInt, mStr}}}

	receiver := env.NewInstance("com.example.Widget")
	var lastCalled jnienv.MethodID
	env.Invoke = func(class string, mid jnienv.MethodID, direct bool, args []uint64) (uint64, error) {
		lastCalled = mid
		return 99, nil
	}

	d := New("m", ModeMethod, group, env, registry, stubHost{}, nil, receiver, nil, 0x1000, "com.example.Widget", false)

	if _, err := d.Call([]any{int32(42)}); err != nil {
		t.Fatalf("Call(42): %v", err)
	}
	if lastCalled != 1 {
		t.Fatalf("expected m(int) to be selected, called method id %d", lastCalled)
	}

	if _, err := d.Call([]any{"x"}); err != nil {
		t.Fatalf("Call(\"x\"): %v", err)
	}
	if lastCalled != 2 {
		t.Fatalf("expected m(String) to be selected, called method id %d", lastCalled)
	}

	if _, err := d.Call([]any{3.5}); err == nil || !jerr.Is(err, jerr.NoSuchOverload) {
		t.Fatalf("expected NoSuchOverload for m(3.5), got %v", err)
	}
}

func TestVarargsPromotion(t *testing.T) {
	env := jnienv.NewFake()
	registry := newRegistry(t, 0x2000)
	intT := mustLookup(t, registry, "int")
	strArrT := mustLookup(t, registry, "java.lang.String[]")

	var seenArrayLen int
	env.Invoke = func(class string, mid jnienv.MethodID, direct bool, args []uint64) (uint64, error) {
		n, _ := env.GetArrayLength(jnienv.Ref(args[1]))
		seenArrayLen = n
		return 0, nil
	}

	m := &member.Method{Name: "m", Kind: member.InstanceMethod, ID: 1, IsVarArgs: true,
		ArgTypes: []*typeadapter.TypeAdapter{intT, strArrT}, ReturnType: mustLookup(t, registry, "void")}
	group := &member.OverloadGroup{Name: "m", ByArity: map[int][]*member.Method{2: {m}}}

	receiver := env.NewInstance("com.example.Widget")
	d := New("m", ModeMethod, group, env, registry, stubHost{}, nil, receiver, nil, 0x2000, "com.example.Widget", false)

	if _, err := d.Call([]any{int32(1), "a", "b"}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if seenArrayLen != 2 {
		t.Fatalf("expected the receiver to observe a 2-element array, got %d", seenArrayLen)
	}
}

func TestReentrantCallUsesDirectPath(t *testing.T) {
	env := jnienv.NewFake()
	registry := newRegistry(t, 0x3000)
	intT := mustLookup(t, registry, "int")
	api := vmapi.NewFake(vmapi.Art)
	api.CurrentThread = 7
	hooks := hook.New(env, api)

	m := &member.Method{Name: "length", Kind: member.InstanceMethod, ID: 5, ReturnType: intT}
	group := &member.OverloadGroup{Name: "length", ByArity: map[int][]*member.Method{0: {m}}}

	var sawDirect bool
	env.Invoke = func(class string, mid jnienv.MethodID, direct bool, args []uint64) (uint64, error) {
		sawDirect = direct
		return 3, nil
	}

	receiver := env.NewInstance("java.lang.String")
	d := New("length", ModeMethod, group, env, registry, stubHost{}, hooks, receiver, nil, 0x3000, "java.lang.String", false)

	if _, err := d.Call(nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if sawDirect {
		t.Fatalf("expected virtual dispatch before any re-entry is recorded")
	}

	m.MarkEntering(7)
	if _, err := d.Call(nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	m.MarkExiting(7)
	if !sawDirect {
		t.Fatalf("expected nonvirtual/direct dispatch while the calling thread is inside the replacement")
	}
}

func TestSyntheticValueOfReturnsReceiverWithoutJniCall(t *testing.T) {
	env := jnienv.NewFake()
	registry := newRegistry(t, 0x5000)
	intT := mustLookup(t, registry, "int")

	m := &member.Method{Name: "valueOf", Kind: member.InstanceMethod, ReturnType: intT, Synthetic: true}
	group := &member.OverloadGroup{Name: "valueOf", ByArity: map[int][]*member.Method{0: {m}}}

	var called bool
	env.Invoke = func(class string, mid jnienv.MethodID, direct bool, args []uint64) (uint64, error) {
		called = true
		return 0, nil
	}

	receiver := env.NewInstance("com.example.Unit")
	inst := stubInstance{handle: receiver, className: "com.example.Unit"}
	d := New("valueOf", ModeMethod, group, env, registry, stubHost{}, nil, receiver, inst, 0x5000, "com.example.Unit", false)

	out, err := d.Call(nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if called {
		t.Fatalf("expected the synthetic valueOf overload to never reach a JNI call")
	}
	if out != inst {
		t.Fatalf("expected Call to return the receiver instance, got %v", out)
	}
}

func TestClassViewToStringLiteral(t *testing.T) {
	env := jnienv.NewFake()
	registry := newRegistry(t, 0x4000)

	m := &member.Method{Name: "toString", Kind: member.InstanceMethod, ID: 1, ReturnType: mustLookup(t, registry, "java.lang.String")}
	group := &member.OverloadGroup{Name: "toString", ByArity: map[int][]*member.Method{0: {m}}}

	d := New("toString", ModeMethod, group, env, registry, stubHost{}, nil, 0, nil, 0x4000, "com.example.Widget", true)

	out, err := d.Call(nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "<com.example.Widget>" {
		t.Fatalf("expected class-view toString literal, got %v", out)
	}
}
