package bridge

import (
	"testing"

	"github.com/halvard/jbridge/internal/classwrap"
	"github.com/halvard/jbridge/internal/heap"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/vmapi"
)

func TestAttachComposesUsableContext(t *testing.T) {
	env := jnienv.NewFake()
	env.RegisterClass(&jnienv.FakeClass{
		Name: "com.example.Widget",
		Methods: []jnienv.ReflectedMethod{
			{Name: "size", ReturnType: "int"},
		},
		Constructors: []jnienv.ReflectedConstructor{{}},
	})
	api := vmapi.NewFake(vmapi.Dalvik)
	api.DecodeRef = func(ref uint64) uint64 { return ref + 0x1000 }
	ctx := Attach(env, api, nil)

	w, err := ctx.Use("com.example.Widget")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}

	inst, err := w.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if inst.ClassName() != "com.example.Widget" {
		t.Fatalf("expected Widget instance, got %s", inst.ClassName())
	}

	casted, err := ctx.Cast(inst.Handle(), "com.example.Widget")
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if casted.Handle() != inst.Handle() {
		t.Fatalf("expected Cast to preserve the handle")
	}

	stats := ctx.Stats()
	if stats.WrapperCount != 1 {
		t.Fatalf("expected one cached wrapper, got %d", stats.WrapperCount)
	}

	classPtr := uint64(w.Ref) + 0x1000
	api.PlaceHeapObject(api.HeapSourceBase()+8, classPtr)
	var found int
	if err := ctx.Choose("com.example.Widget", heap.Callbacks{
		OnMatch: func(ci *classwrap.ClassInstance) heap.MatchResult {
			found++
			return heap.Stop
		},
	}); err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if found != 1 {
		t.Fatalf("expected one heap match, got %d", found)
	}

	if err := ctx.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
}
