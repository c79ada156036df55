package heap

import (
	"testing"

	"github.com/halvard/jbridge/internal/classwrap"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/typeadapter"
	"github.com/halvard/jbridge/internal/vmapi"
)

func TestChooseFindsAllPlacedInstancesAndCompletes(t *testing.T) {
	env := jnienv.NewFake()
	env.RegisterClass(&jnienv.FakeClass{Name: "com.example.Widget"})
	registry := typeadapter.NewRegistry()
	api := vmapi.NewFake(vmapi.Dalvik)
	api.DecodeRef = func(ref uint64) uint64 { return ref + 0x1000 }
	cache := classwrap.New(env, registry, nil, nil)

	w, err := cache.Use("com.example.Widget")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	// The heap holds the decoded raw object pointer, not the pinned
	// indirect-table ref itself; Choose must decode w.Ref before
	// comparing, or every object below would go unmatched.
	classPtr := uint64(w.Ref) + 0x1000

	base := api.HeapSourceBase()
	addrs := []uint64{base + 8, base + 16, base + 24, base + 32}
	for _, a := range addrs {
		api.PlaceHeapObject(a, classPtr)
	}

	e := New(env, api, cache)

	var found []*classwrap.ClassInstance
	completed := false
	err = e.Choose("com.example.Widget", Callbacks{
		OnMatch: func(inst *classwrap.ClassInstance) MatchResult {
			found = append(found, inst)
			return Continue
		},
		OnComplete: func() { completed = true },
	})
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if len(found) != len(addrs) {
		t.Fatalf("expected %d instances found, got %d", len(addrs), len(found))
	}
	if !completed {
		t.Fatalf("expected OnComplete to run")
	}
	for _, inst := range found {
		if inst.ClassName() != "com.example.Widget" {
			t.Fatalf("expected every match to be a Widget instance, got %s", inst.ClassName())
		}
	}
}

func TestChooseStopsEarly(t *testing.T) {
	env := jnienv.NewFake()
	env.RegisterClass(&jnienv.FakeClass{Name: "com.example.Widget"})
	registry := typeadapter.NewRegistry()
	api := vmapi.NewFake(vmapi.Dalvik)
	cache := classwrap.New(env, registry, nil, nil)

	w, err := cache.Use("com.example.Widget")
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	classPtr := uint64(w.Ref)

	base := api.HeapSourceBase()
	for i := 0; i < 5; i++ {
		api.PlaceHeapObject(base+uint64(i)*8, classPtr)
	}

	e := New(env, api, cache)

	count := 0
	err = e.Choose("com.example.Widget", Callbacks{
		OnMatch: func(inst *classwrap.ClassInstance) MatchResult {
			count++
			return Stop
		},
	})
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected scanning to stop after the first match, got %d callbacks", count)
	}
}

func TestChooseUnsupportedOnArt(t *testing.T) {
	env := jnienv.NewFake()
	registry := typeadapter.NewRegistry()
	api := vmapi.NewFake(vmapi.Art)
	cache := classwrap.New(env, registry, nil, nil)
	e := New(env, api, cache)

	err := e.Choose("com.example.Widget", Callbacks{})
	if !jerr.Is(err, jerr.HeapScanUnsupported) {
		t.Fatalf("expected HeapScanUnsupported on an ART-attached process, got %v", err)
	}
}
