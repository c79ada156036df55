package classwrap

import (
	"sync"

	"github.com/halvard/jbridge/internal/hook"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jlog"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/typeadapter"
	"github.com/halvard/jbridge/internal/weakref"
)

// Cache is Component B's Class Cache & Wrapper Factory: it resolves
// each class name to a ClassWrapper exactly once (spec §4.B), casts raw
// handles to ClassInstance (implementing typeadapter.InstanceHost so
// Component A can marshal reference types without importing this
// package), and tracks every installed hook and pinned instance for
// disposal.
type Cache struct {
	env      jnienv.Env
	registry *typeadapter.Registry
	hooks    *hook.Engine
	log      *jlog.Logger
	weak     *weakref.Registry

	mu     sync.Mutex
	byName map[string]*ClassWrapper
	loader *ClassInstance
}

// New builds a Cache and installs it as registry's InstanceHost.
func New(env jnienv.Env, registry *typeadapter.Registry, hooks *hook.Engine, log *jlog.Logger) *Cache {
	if log == nil {
		log = jlog.NewNop()
	}
	c := &Cache{
		env: env, registry: registry, hooks: hooks, log: log,
		weak:   weakref.New(),
		byName: make(map[string]*ClassWrapper),
	}
	registry.SetHost(c)
	return c
}

// Use resolves name (dotted or slash form) to its ClassWrapper,
// constructing and caching it on first access (spec §4.B: "use(name)
// returns the same wrapper identity for the same name on every call").
func (c *Cache) Use(name string) (*ClassWrapper, error) {
	return c.use(dotted(name))
}

// Cast wraps handle (a live jobject) as a ClassInstance of className,
// satisfying typeadapter.InstanceHost.
func (c *Cache) Cast(handle jnienv.Ref, className string) (typeadapter.Instance, error) {
	if handle == 0 {
		return nil, nil
	}
	w, err := c.use(dotted(className))
	if err != nil {
		return nil, err
	}
	return c.wrap(handle, w)
}

// ResolveClass resolves className to its pinned Class handle,
// satisfying typeadapter.InstanceHost (object-array element classes).
func (c *Cache) ResolveClass(className string) (jnienv.Ref, error) {
	w, err := c.use(dotted(className))
	if err != nil {
		return 0, err
	}
	return w.Ref, nil
}

// wrap pins a global reference to handle and registers its release with
// the weak-reference registry.
func (c *Cache) wrap(handle jnienv.Ref, w *ClassWrapper) (*ClassInstance, error) {
	pinned := c.env.NewGlobalRef(handle)
	if pinned == 0 {
		return nil, jerr.New(jerr.OutOfMemory, "pin global ref to instance of %s", w.Name)
	}
	inst := &ClassInstance{ref: pinned, wrapper: w}
	inst.token = c.weak.Register(func() {
		c.env.DeleteGlobalRef(pinned)
	})
	return inst, nil
}

func (c *Cache) use(name string) (*ClassWrapper, error) {
	c.mu.Lock()
	if w, ok := c.byName[name]; ok {
		c.mu.Unlock()
		return w, nil
	}
	c.mu.Unlock()

	classRef, err := c.resolveClassRef(name)
	if err != nil {
		return nil, err
	}
	pinned := c.env.NewGlobalRef(classRef)
	if pinned == 0 {
		return nil, jerr.New(jerr.OutOfMemory, "pin global ref to class %s", name)
	}

	var parent *ClassWrapper
	if superRef := c.env.GetSuperclass(pinned); superRef != 0 {
		superName := dotted(c.env.GetClassName(superRef))
		if superName != "" && superName != name {
			parent, err = c.use(superName)
			if err != nil {
				return nil, err
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.byName[name]; ok {
		return w, nil
	}
	w := &ClassWrapper{Ref: pinned, Name: name, Parent: parent, cache: c}
	c.byName[name] = w
	c.log.Trace("classwrap", "use", name)
	return w, nil
}

// resolveClassRef finds a class either through the installed user
// ClassLoader, or via FindClass for the bootstrap loader.
func (c *Cache) resolveClassRef(name string) (jnienv.Ref, error) {
	c.mu.Lock()
	loader := c.loader
	c.mu.Unlock()
	if loader != nil {
		return c.loadViaLoader(loader, name)
	}
	ref, err := c.env.FindClass(slashed(name))
	if err != nil {
		return 0, jerr.New(jerr.ClassNotFound, "find class %s: %v", name, err)
	}
	return ref, nil
}

// loadViaLoader calls loadClass directly on the raw JNI surface,
// deliberately bypassing use()/dispatch.Dispatcher: routing this
// through the normal member-resolution path would recursively call
// back into use() to resolve java.lang.ClassLoader itself, and for the
// very first lookup of ClassLoader there is no wrapper yet to recurse
// into.
func (c *Cache) loadViaLoader(loader *ClassInstance, name string) (jnienv.Ref, error) {
	loaderClass := c.env.GetObjectClass(loader.ref)
	mid, err := c.env.GetMethodID(loaderClass, "loadClass", "(Ljava/lang/String;)Ljava/lang/Class;")
	if err != nil {
		return 0, jerr.New(jerr.ReflectionFailed, "resolve ClassLoader.loadClass: %v", err)
	}
	nameRef := c.env.NewStringUTF(name)
	word, err := c.env.CallMethodA("java.lang.Class", false, loader.ref, loaderClass, mid, []uint64{uint64(nameRef)})
	if err != nil {
		return 0, jerr.New(jerr.ClassNotFound, "loadClass(%s): %v", name, err)
	}
	if c.env.ExceptionCheck() {
		throwable := c.env.ExceptionOccurred()
		c.env.ExceptionClear()
		return 0, jerr.NewJavaException(uint64(throwable), "loadClass(%s) raised a pending exception", name)
	}
	return jnienv.Ref(word), nil
}

// SetLoader installs loader as the ClassLoader subsequent Use calls
// resolve through (spec §4.B "loader" property).
func (c *Cache) SetLoader(loader *ClassInstance) {
	c.mu.Lock()
	c.loader = loader
	c.mu.Unlock()
}

// Loader returns the currently installed ClassLoader instance, or nil
// for the bootstrap loader.
func (c *Cache) Loader() *ClassInstance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loader
}

// Dispose uninstalls every hook this Cache's wrappers installed,
// releases every still-pinned instance, and releases every cached
// class's global ref (spec §9 "factory disposal releases all state
// this package owns").
func (c *Cache) Dispose() error {
	c.mu.Lock()
	wrappers := make([]*ClassWrapper, 0, len(c.byName))
	for _, w := range c.byName {
		wrappers = append(wrappers, w)
	}
	c.byName = make(map[string]*ClassWrapper)
	c.loader = nil
	c.mu.Unlock()

	var firstErr error
	for _, w := range wrappers {
		w.mu.Lock()
		table := w.table
		w.mu.Unlock()
		if table != nil {
			for _, group := range table.Methods {
				for _, ms := range group.ByArity {
					for _, m := range ms {
						if m.IsHooked() {
							if err := c.hooks.Uninstall(m); err != nil && firstErr == nil {
								firstErr = err
							}
						}
					}
				}
			}
		}
		c.env.DeleteGlobalRef(w.Ref)
	}

	c.weak.Sweep()
	return firstErr
}

// Stats reports a lightweight snapshot of cache occupancy and hook
// usage, useful for diagnostics beyond what spec.md's literal text
// names (an expansion per SPEC_FULL.md).
type Stats struct {
	WrapperCount      int
	HookedMethodCount int
}

// Stats computes a Stats snapshot by walking every cached wrapper.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	wrappers := make([]*ClassWrapper, 0, len(c.byName))
	for _, w := range c.byName {
		wrappers = append(wrappers, w)
	}
	c.mu.Unlock()

	s := Stats{WrapperCount: len(wrappers)}
	for _, w := range wrappers {
		w.mu.Lock()
		table := w.table
		w.mu.Unlock()
		if table == nil {
			continue
		}
		for _, group := range table.Methods {
			for _, ms := range group.ByArity {
				for _, m := range ms {
					if m.IsHooked() {
						s.HookedMethodCount++
					}
				}
			}
		}
	}
	return s
}
