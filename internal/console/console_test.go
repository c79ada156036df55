package console

import (
	"testing"

	"github.com/halvard/jbridge/internal/bridge"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/vmapi"
)

func newTestConsole(t *testing.T) (*Console, *jnienv.Fake) {
	t.Helper()
	env := jnienv.NewFake()
	api := vmapi.NewFake(vmapi.Dalvik)
	ctx := bridge.Attach(env, api, nil)
	return New(ctx, nil), env
}

func TestUseAndConstructRoundTrip(t *testing.T) {
	c, env := newTestConsole(t)
	env.RegisterClass(&jnienv.FakeClass{
		Name:         "com.example.Widget",
		Constructors: []jnienv.ReflectedConstructor{{}},
	})

	result, err := c.Eval(`
		var Widget = use("com.example.Widget");
		var w = Widget.$new();
		w.$className;
	`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if result != "com.example.Widget" {
		t.Fatalf("expected com.example.Widget, got %v", result)
	}
}

func TestMethodCallThroughDispatcher(t *testing.T) {
	c, env := newTestConsole(t)
	env.RegisterClass(&jnienv.FakeClass{
		Name: "com.example.Widget",
		Methods: []jnienv.ReflectedMethod{
			{Name: "size", ReturnType: "int"},
		},
		Constructors: []jnienv.ReflectedConstructor{{}},
	})
	env.Invoke = func(class string, mid jnienv.MethodID, direct bool, args []uint64) (uint64, error) {
		return 42, nil
	}

	result, err := c.Eval(`
		var Widget = use("com.example.Widget");
		var w = Widget.$new();
		var m = Widget.method("size", w);
		m.call();
	`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if result != int64(42) {
		t.Fatalf("expected 42, got %v (%T)", result, result)
	}
}

func TestUnknownClassRejected(t *testing.T) {
	c, _ := newTestConsole(t)
	_, err := c.Eval(`use("com.example.Missing")`)
	if err == nil {
		t.Fatalf("expected an error resolving an unregistered class")
	}
}
