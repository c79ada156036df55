// Package bridge composes Components A-F and the jnienv/vmapi external
// collaborators into the single explicit context a script or CLI
// command attaches through, exposing exactly the surface spec §6
// describes: use, cast, openClassFile, choose, loader, dispose.
package bridge

import (
	"github.com/halvard/jbridge/internal/classwrap"
	"github.com/halvard/jbridge/internal/heap"
	"github.com/halvard/jbridge/internal/hook"
	"github.com/halvard/jbridge/internal/jlog"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/typeadapter"
	"github.com/halvard/jbridge/internal/vmapi"
)

// Context is the attached-process handle every script or CLI command
// holds: one Env/Api pair and the component instances built over them.
type Context struct {
	Env jnienv.Env
	Api vmapi.Api

	Registry *typeadapter.Registry
	Classes  *classwrap.Cache
	Hooks    *hook.Engine
	Heap     *heap.Enumerator

	log *jlog.Logger
}

// Attach builds a Context over an already-attached Env/Api pair. log
// may be nil, in which case a no-op logger is used.
func Attach(env jnienv.Env, api vmapi.Api, log *jlog.Logger) *Context {
	if log == nil {
		log = jlog.NewNop()
	}
	registry := typeadapter.NewRegistry()
	hooks := hook.New(env, api)
	classes := classwrap.New(env, registry, hooks, log)
	return &Context{
		Env: env, Api: api,
		Registry: registry,
		Classes:  classes,
		Hooks:    hooks,
		Heap:     heap.New(env, api, classes),
		log:      log,
	}
}

// Use resolves name to its ClassWrapper, the `use(name)` operation.
func (c *Context) Use(name string) (*classwrap.ClassWrapper, error) {
	return c.Classes.Use(name)
}

// Cast wraps handle as a ClassInstance of className, the `cast(handle,
// className)` operation.
func (c *Context) Cast(handle jnienv.Ref, className string) (*classwrap.ClassInstance, error) {
	inst, err := c.Classes.Cast(handle, className)
	if err != nil {
		return nil, err
	}
	ci, _ := inst.(*classwrap.ClassInstance)
	return ci, nil
}

// OpenClassFile builds a DexFile facade over path, the `openClassFile(path)`
// operation.
func (c *Context) OpenClassFile(path string) *classwrap.DexFile {
	return c.Classes.OpenClassFile(path)
}

// Choose runs a heap scan for className, the `choose(name, {...})`
// operation. It fails with HeapScanUnsupported on an ART-attached
// process (spec §4.F).
func (c *Context) Choose(className string, cb heap.Callbacks) error {
	return c.Heap.Choose(className, cb)
}

// Loader returns the currently installed ClassLoader instance, or nil
// for the bootstrap loader.
func (c *Context) Loader() *classwrap.ClassInstance {
	return c.Classes.Loader()
}

// SetLoader installs loader as the ClassLoader subsequent Use calls
// resolve through.
func (c *Context) SetLoader(loader *classwrap.ClassInstance) {
	c.Classes.SetLoader(loader)
}

// Stats reports cache occupancy and active hook counts for operability
// tooling (the `jbridge inspect` CLI command).
func (c *Context) Stats() classwrap.Stats {
	return c.Classes.Stats()
}

// Dispose releases every hook, pinned instance, and cached class handle
// this Context's components own (spec §9 "factory disposal").
func (c *Context) Dispose() error {
	return c.Classes.Dispose()
}
