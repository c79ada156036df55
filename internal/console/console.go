// Package console implements the goja-hosted scripting surface of spec
// §6: use, cast, openClassFile, choose, loader, dispose as JS globals,
// and ClassWrapper/ClassInstance/Dispatcher values exposed to scripts
// as JS objects. It is the concrete, testable consumer of the bridge
// API described in SPEC_FULL.md, analogous to the teacher's
// `cmd/galago` trace REPL.
package console

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/halvard/jbridge/internal/bridge"
	"github.com/halvard/jbridge/internal/classwrap"
	"github.com/halvard/jbridge/internal/dispatch"
	"github.com/halvard/jbridge/internal/heap"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jlog"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/typeadapter"
)

// Console hosts one goja.Runtime wired to a bridge.Context.
type Console struct {
	ctx *bridge.Context
	vm  *goja.Runtime
	log *jlog.Logger
}

// New builds a Console and registers every global the scripting
// surface exposes.
func New(ctx *bridge.Context, log *jlog.Logger) *Console {
	if log == nil {
		log = jlog.NewNop()
	}
	c := &Console{ctx: ctx, vm: goja.New(), log: log}
	c.registerGlobals()
	return c
}

// Eval runs script and returns its final expression value, translated
// to a Go value, or a bridge error if the script or any bridge
// operation it invoked failed.
func (c *Console) Eval(script string) (any, error) {
	v, err := c.vm.RunString(script)
	if err != nil {
		if gojaErr, ok := err.(*goja.Exception); ok {
			if be, ok := gojaErr.Value().Export().(error); ok {
				return nil, be
			}
			return nil, fmt.Errorf("%s", gojaErr.Value().String())
		}
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.Export(), nil
}

func (c *Console) registerGlobals() {
	vm := c.vm

	must(vm.Set("use", func(name string) goja.Value {
		w, err := c.ctx.Use(name)
		c.panicOn(err)
		return c.wrapClassWrapper(w)
	}))

	must(vm.Set("cast", func(handle int64, className string) goja.Value {
		inst, err := c.ctx.Cast(jnienv.Ref(uint64(handle)), className)
		c.panicOn(err)
		return c.wrapClassInstance(inst)
	}))

	must(vm.Set("openClassFile", func(path string) goja.Value {
		return c.wrapDexFile(c.ctx.OpenClassFile(path))
	}))

	must(vm.Set("choose", func(name string, handlersVal goja.Value) {
		handlers := handlersVal.ToObject(vm)
		onMatch, _ := goja.AssertFunction(handlers.Get("onMatch"))
		onComplete, _ := goja.AssertFunction(handlers.Get("onComplete"))

		err := c.ctx.Choose(name, heap.Callbacks{
			OnMatch: func(inst *classwrap.ClassInstance) heap.MatchResult {
				if onMatch == nil {
					return heap.Continue
				}
				res, callErr := onMatch(goja.Undefined(), c.wrapClassInstance(inst))
				if callErr != nil {
					return heap.Stop
				}
				if res.ToString().String() == "stop" {
					return heap.Stop
				}
				return heap.Continue
			},
			OnComplete: func() {
				if onComplete != nil {
					onComplete(goja.Undefined())
				}
			},
		})
		c.panicOn(err)
	}))

	must(vm.Set("dispose", func() {
		c.panicOn(c.ctx.Dispose())
	}))

	loaderGetter := vm.ToValue(func(goja.FunctionCall) goja.Value {
		loader := c.ctx.Loader()
		if loader == nil {
			return goja.Null()
		}
		return c.wrapClassInstance(loader)
	})
	loaderSetter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsNull(arg) || goja.IsUndefined(arg) {
			c.ctx.SetLoader(nil)
			return goja.Undefined()
		}
		inst := c.instanceFromValue(arg)
		c.ctx.SetLoader(inst)
		return goja.Undefined()
	})
	global := vm.GlobalObject()
	must(global.DefineAccessorProperty("loader", loaderGetter, loaderSetter, goja.FLAG_TRUE, goja.FLAG_TRUE))
}

func (c *Console) panicOn(err error) {
	if err == nil {
		return
	}
	panic(c.vm.ToValue(err))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// instanceFromValue recovers the *classwrap.ClassInstance a wrapped JS
// object carries, for operations (loader=, method receivers) that take
// an instance back from script code.
func (c *Console) instanceFromValue(v goja.Value) *classwrap.ClassInstance {
	obj := v.ToObject(c.vm)
	raw := obj.Get("__handle")
	if raw == nil || goja.IsUndefined(raw) {
		return nil
	}
	className := obj.Get("$className").String()
	inst, err := c.ctx.Cast(jnienv.Ref(uint64(raw.ToInteger())), className)
	c.panicOn(err)
	return inst
}

// wrapClassWrapper exposes a ClassWrapper as a JS object carrying the
// constructor/allocation operations and per-member accessors of spec
// §6. Per-member access uses explicit method(name)/accessor(name)
// calls rather than magic property interception, since goja's dynamic
// object support is outside this bridge's reflection scope (see
// DESIGN.md).
func (c *Console) wrapClassWrapper(w *classwrap.ClassWrapper) *goja.Object {
	vm := c.vm
	obj := vm.NewObject()
	must(obj.Set("$className", w.Name))
	must(obj.Set("class", vm.ToValue(uint64(w.ClassAttr()))))

	must(obj.Set("$new", func(call goja.FunctionCall) goja.Value {
		inst, err := w.New(exportArgs(call.Arguments))
		c.panicOn(err)
		return c.wrapClassInstance(inst)
	}))
	must(obj.Set("$alloc", func(goja.FunctionCall) goja.Value {
		inst, err := w.Alloc()
		c.panicOn(err)
		return c.wrapClassInstance(inst)
	}))
	must(obj.Set("$init", func(call goja.FunctionCall) goja.Value {
		inst := c.instanceFromValue(call.Argument(0))
		var rest []goja.Value
		if len(call.Arguments) > 1 {
			rest = call.Arguments[1:]
		}
		err := w.Init(inst, exportArgs(rest))
		c.panicOn(err)
		return goja.Undefined()
	}))

	must(obj.Set("method", func(name string, receiver goja.Value) goja.Value {
		var inst *classwrap.ClassInstance
		if receiver != nil && !goja.IsUndefined(receiver) && !goja.IsNull(receiver) {
			inst = c.instanceFromValue(receiver)
		}
		d, err := w.Method(name, instanceOrNil(inst), inst == nil)
		c.panicOn(err)
		return c.wrapDispatcher(d)
	}))
	must(obj.Set("accessor", func(name string, receiver goja.Value) goja.Value {
		var inst *classwrap.ClassInstance
		if receiver != nil && !goja.IsUndefined(receiver) && !goja.IsNull(receiver) {
			inst = c.instanceFromValue(receiver)
		}
		a, err := w.Accessor(name, instanceOrNil(inst), inst == nil)
		c.panicOn(err)
		return c.wrapAccessor(a)
	}))

	return obj
}

// wrapClassInstance exposes a ClassInstance as a JS object. __handle is
// not part of the documented surface; it lets instanceFromValue recover
// the instance a script passed back in (e.g. as a method receiver or
// the new loader).
func (c *Console) wrapClassInstance(inst *classwrap.ClassInstance) *goja.Object {
	if inst == nil {
		return nil
	}
	vm := c.vm
	obj := vm.NewObject()
	must(obj.Set("__handle", uint64(inst.Handle())))
	must(obj.Set("$className", inst.ClassName()))
	must(obj.Set("$isSameObject", func(other goja.Value) bool {
		return inst.IsSameObject(c.instanceFromValue(other))
	}))
	must(obj.Set("$dispose", func() { inst.Dispose() }))
	return obj
}

func (c *Console) wrapDexFile(d *classwrap.DexFile) *goja.Object {
	vm := c.vm
	obj := vm.NewObject()
	must(obj.Set("load", func(optimizedDirectory, librarySearchPath string, parent goja.Value) goja.Value {
		var parentInst *classwrap.ClassInstance
		if parent != nil && !goja.IsUndefined(parent) && !goja.IsNull(parent) {
			parentInst = c.instanceFromValue(parent)
		}
		c.panicOn(d.Load(optimizedDirectory, librarySearchPath, parentInst))
		return goja.Undefined()
	}))
	must(obj.Set("getClassNames", func() goja.Value {
		names, err := d.GetClassNames()
		c.panicOn(err)
		return vm.ToValue(names)
	}))
	return obj
}

func (c *Console) wrapDispatcher(d *dispatch.Dispatcher) *goja.Object {
	vm := c.vm
	obj := vm.NewObject()
	must(obj.Set("overloads", func() goja.Value {
		return vm.ToValue(len(d.Overloads()))
	}))
	must(obj.Set("overload", func(call goja.FunctionCall) goja.Value {
		names := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			names[i] = a.String()
		}
		m, err := d.Overload(names...)
		c.panicOn(err)
		return vm.ToValue(uint64(m.ID))
	}))
	must(obj.Set("call", func(call goja.FunctionCall) goja.Value {
		result, err := d.Call(exportArgs(call.Arguments))
		c.panicOn(err)
		return vm.ToValue(result)
	}))

	implGetter := vm.ToValue(func(goja.FunctionCall) goja.Value {
		has, err := d.GetImplementation()
		c.panicOn(err)
		return vm.ToValue(has)
	})
	implSetter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsNull(arg) || goja.IsUndefined(arg) {
			c.panicOn(d.SetImplementation(nil))
			return goja.Undefined()
		}
		fn, ok := goja.AssertFunction(arg)
		if !ok {
			c.panicOn(jerr.New(jerr.IncompatibleArgument, "implementation must be a function"))
		}
		c.panicOn(d.SetImplementation(func(receiver any, args []any) (any, error) {
			jsArgs := make([]goja.Value, len(args))
			for i, a := range args {
				jsArgs[i] = vm.ToValue(a)
			}
			var thisVal goja.Value = goja.Undefined()
			if ci, ok := receiver.(*classwrap.ClassInstance); ok {
				thisVal = c.wrapClassInstance(ci)
			}
			res, err := fn(thisVal, jsArgs...)
			if err != nil {
				return nil, err
			}
			return res.Export(), nil
		}))
		return goja.Undefined()
	})
	must(obj.DefineAccessorProperty("implementation", implGetter, implSetter, goja.FLAG_TRUE, goja.FLAG_TRUE))

	return obj
}

func (c *Console) wrapAccessor(a *classwrap.Accessor) *goja.Object {
	vm := c.vm
	obj := vm.NewObject()
	must(obj.Set("call", func(call goja.FunctionCall) goja.Value {
		result, err := a.Call(exportArgs(call.Arguments))
		c.panicOn(err)
		return vm.ToValue(result)
	}))

	valueGetter := vm.ToValue(func(goja.FunctionCall) goja.Value {
		v, err := a.Get()
		c.panicOn(err)
		return vm.ToValue(v)
	})
	valueSetter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		c.panicOn(a.Set(call.Argument(0).Export()))
		return goja.Undefined()
	})
	must(obj.DefineAccessorProperty("value", valueGetter, valueSetter, goja.FLAG_TRUE, goja.FLAG_TRUE))
	return obj
}

// instanceOrNil converts a possibly-nil *classwrap.ClassInstance to a
// typeadapter.Instance that is a true nil interface value when inst is
// nil, avoiding the typed-nil-in-interface pitfall of passing inst
// straight through.
func instanceOrNil(inst *classwrap.ClassInstance) typeadapter.Instance {
	if inst == nil {
		return nil
	}
	return inst
}

func exportArgs(vals []goja.Value) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v.Export()
	}
	return out
}
