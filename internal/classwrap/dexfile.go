package classwrap

import (
	"github.com/halvard/jbridge/internal/jerr"
)

// DexFile is the self-hosted facade over dalvik.system.DexFile /
// DexClassLoader spec §4.B's openClassFile names. It is "self-hosted"
// in that every operation below goes through the same Cache.Use/New
// and dispatch.Dispatcher machinery any other class would, rather than
// special-casing DexFile's JNI calls (spec §9).
type DexFile struct {
	cache *Cache
	path  string

	instance *ClassInstance
}

// OpenClassFile constructs a DexFile facade over path, without loading
// it yet.
func (c *Cache) OpenClassFile(path string) *DexFile {
	return &DexFile{cache: c, path: path}
}

// Load installs path as a DexClassLoader and makes it the Cache's
// active loader, so subsequent Use calls resolve classes from it (spec
// §4.B openClassFile(...).load()).
func (d *DexFile) Load(optimizedDirectory, librarySearchPath string, parent *ClassInstance) error {
	w, err := d.cache.Use("dalvik.system.DexClassLoader")
	if err != nil {
		return err
	}
	var parentRef any
	if parent != nil {
		parentRef = parent
	}
	inst, err := w.New([]any{d.path, optimizedDirectory, librarySearchPath, parentRef})
	if err != nil {
		return err
	}
	d.cache.SetLoader(inst)
	return nil
}

// GetClassNames enumerates the class names dalvik.system.DexFile
// reports for this path, constructing the DexFile instance lazily on
// first call (spec §4.B openClassFile(...).getClassNames()).
func (d *DexFile) GetClassNames() ([]string, error) {
	w, err := d.cache.Use("dalvik.system.DexFile")
	if err != nil {
		return nil, err
	}
	if d.instance == nil {
		inst, err := w.New([]any{d.path})
		if err != nil {
			return nil, err
		}
		d.instance = inst
	}

	entries, err := w.Method("entries", d.instance, false)
	if err != nil {
		return nil, err
	}
	enum, err := entries.Call(nil)
	if err != nil {
		return nil, err
	}
	enumInst, ok := enum.(*ClassInstance)
	if !ok || enumInst == nil {
		return nil, jerr.New(jerr.ReflectionFailed, "DexFile.entries() returned no Enumeration")
	}
	enumWrapper := enumInst.wrapper

	var names []string
	for {
		hasMore, err := enumWrapper.Method("hasMoreElements", enumInst, false)
		if err != nil {
			return nil, err
		}
		more, err := hasMore.Call(nil)
		if err != nil {
			return nil, err
		}
		if b, _ := more.(bool); !b {
			break
		}
		next, err := enumWrapper.Method("nextElement", enumInst, false)
		if err != nil {
			return nil, err
		}
		elem, err := next.Call(nil)
		if err != nil {
			return nil, err
		}
		if s, ok := elem.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}
