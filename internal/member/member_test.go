package member

import (
	"testing"

	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/typeadapter"
)

func newTestRegistry() *typeadapter.Registry {
	r := typeadapter.NewRegistry()
	r.SetHost(fakeHost{})
	return r
}

type fakeHost struct{}

func (fakeHost) Cast(handle jnienv.Ref, className string) (typeadapter.Instance, error) {
	return nil, nil
}

func (fakeHost) ResolveClass(className string) (jnienv.Ref, error) {
	return jnienv.Ref(0x1000), nil
}

func registerAndFind(t *testing.T, fake *jnienv.Fake, c *jnienv.FakeClass) jnienv.Ref {
	t.Helper()
	fake.RegisterClass(c)
	ref, err := fake.FindClass(c.Name)
	if err != nil {
		t.Fatalf("FindClass(%s): %v", c.Name, err)
	}
	return ref
}

func TestResolveGroupsOverloadsByNameAndArity(t *testing.T) {
	fake := jnienv.NewFake()
	class := registerAndFind(t, fake, &jnienv.FakeClass{
		Name: "com.example.Widget",
		Methods: []jnienv.ReflectedMethod{
			{Name: "size", ReturnType: "int"},
			{Name: "size", ReturnType: "int", ParamTypes: []string{"int"}},
			{Name: "name", ReturnType: "java.lang.String", IsStatic: true},
		},
	})

	registry := newTestRegistry()
	table, err := Resolve(fake, registry, class)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	sizeGroup, ok := table.Methods["size"]
	if !ok {
		t.Fatalf("expected a size overload group")
	}
	if got := sizeGroup.Count(); got != 2 {
		t.Fatalf("expected 2 size overloads, got %d", got)
	}
	if len(sizeGroup.ByArity[0]) != 1 || len(sizeGroup.ByArity[1]) != 1 {
		t.Fatalf("expected one overload per arity bucket, got %+v", sizeGroup.ByArity)
	}

	nameGroup := table.Methods["name"]
	if nameGroup.ByArity[0][0].Kind != StaticMethod {
		t.Fatalf("expected name() to be static")
	}
}

func TestValueOfSyntheticOverloadAddedWhenMissing(t *testing.T) {
	fake := jnienv.NewFake()
	class := registerAndFind(t, fake, &jnienv.FakeClass{
		Name: "com.example.Unit",
		Methods: []jnienv.ReflectedMethod{
			{Name: "valueOf", ReturnType: "com.example.Unit", ParamTypes: []string{"java.lang.String"}, IsStatic: true},
		},
	})

	registry := newTestRegistry()
	table, err := Resolve(fake, registry, class)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	group := table.Methods["valueOf"]
	zeroArg := group.ByArity[0]
	if len(zeroArg) != 1 {
		t.Fatalf("expected exactly one synthetic zero-arg valueOf, got %d", len(zeroArg))
	}
	if !zeroArg[0].Synthetic || zeroArg[0].ReturnType.ClassName != "int" {
		t.Fatalf("synthetic valueOf should return int, got %+v", zeroArg[0])
	}
}

func TestValueOfSyntheticOverloadSkippedWhenInstanceZeroArgExists(t *testing.T) {
	fake := jnienv.NewFake()
	class := registerAndFind(t, fake, &jnienv.FakeClass{
		Name: "com.example.Unit",
		Methods: []jnienv.ReflectedMethod{
			{Name: "valueOf", ReturnType: "com.example.Unit"},
		},
	})

	registry := newTestRegistry()
	table, err := Resolve(fake, registry, class)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	group := table.Methods["valueOf"]
	if len(group.ByArity[0]) != 1 || group.ByArity[0][0].Synthetic {
		t.Fatalf("existing zero-arg valueOf should not be duplicated, got %+v", group.ByArity[0])
	}
}

func TestPendingCallsTrackReentry(t *testing.T) {
	m := &Method{Name: "onTick"}
	const tid = uint64(42)

	if m.IsReentrant(tid) {
		t.Fatalf("should not be reentrant before MarkEntering")
	}
	m.MarkEntering(tid)
	if !m.IsReentrant(tid) {
		t.Fatalf("should be reentrant after MarkEntering")
	}
	m.MarkExiting(tid)
	if m.IsReentrant(tid) {
		t.Fatalf("should not be reentrant after MarkExiting")
	}
}
