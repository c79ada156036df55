package typeadapter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/halvard/jbridge/internal/jerr"
)

var primitiveLetters = map[string]byte{
	"boolean": 'Z', "byte": 'B', "char": 'C', "short": 'S',
	"int": 'I', "long": 'J', "float": 'F', "double": 'D',
}

var letterToPrimitive = map[byte]string{
	'Z': "boolean", 'B': "byte", 'C': "char", 'S': "short",
	'I': "int", 'J': "long", 'F': "float", 'D': "double",
}

// Registry resolves Java type names to TypeAdapters, caching every
// lookup (spec §4.A: "All type lookups cache their result"). It must be
// given an InstanceHost (normally Component B's Cache) before resolving
// any object-array type; reference types resolve without one and take
// the host at marshaling time.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*TypeAdapter
	host     InstanceHost
}

// NewRegistry creates a Registry with every primitive and primitive
// array type pre-registered.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]*TypeAdapter)}
	registerPrimitives(r)
	registerPrimitiveArrays(r)
	return r
}

// SetHost installs the InstanceHost used to cast reference handles and
// resolve object-array element classes.
func (r *Registry) SetHost(host InstanceHost) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.host = host
}

func (r *Registry) put(key string, a *TypeAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[key] = a
}

// Lookup resolves a Java type name - a primitive keyword, a JNI
// descriptor ("[I", "Lcom/example/Foo;"), or a getTypeName() source form
// ("int[]", "java.lang.String", "int[][]") - to its TypeAdapter, per
// spec §4.A ("Unknown type names fail with UnsupportedType").
func (r *Registry) Lookup(typeName string) (*TypeAdapter, error) {
	key := canonicalize(typeName)

	r.mu.RLock()
	a, ok := r.adapters[key]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	a, err := r.build(key)
	if err != nil {
		return nil, err
	}
	r.put(key, a)
	return a, nil
}

// canonicalize rewrites any accepted spelling into the internal
// descriptor form: primitive keywords unchanged, "[I"/"Lfoo/Bar;"
// unchanged, "int[]"/"foo.Bar[]"/"foo.Bar" converted to descriptor form.
func canonicalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	if _, ok := primitiveLetters[name]; ok {
		return name
	}
	if name == "void" {
		return name
	}
	if strings.HasSuffix(name, "[]") {
		elem := canonicalize(strings.TrimSuffix(name, "[]"))
		return "[" + descriptorOf(elem)
	}
	if strings.HasPrefix(name, "[") {
		return name
	}
	if strings.HasPrefix(name, "L") && strings.HasSuffix(name, ";") {
		return name
	}
	return name // bare dotted class name
}

// descriptorOf converts a canonical type name into the form legal as an
// array-element prefix: primitive letters stay bare, arrays stay bare
// (already prefixed with "["), reference types gain "L...;".
func descriptorOf(canonical string) string {
	if letter, ok := primitiveLetters[canonical]; ok {
		return string(letter)
	}
	if strings.HasPrefix(canonical, "[") {
		return canonical
	}
	if strings.HasPrefix(canonical, "L") && strings.HasSuffix(canonical, ";") {
		return canonical
	}
	return "L" + canonical + ";"
}

func (r *Registry) build(key string) (*TypeAdapter, error) {
	if strings.HasPrefix(key, "[") {
		return r.buildArray(key)
	}
	if strings.HasPrefix(key, "L") && strings.HasSuffix(key, ";") {
		return newReferenceAdapter(classFileType(key)), nil
	}
	if key == "" {
		return nil, jerr.New(jerr.UnsupportedType, "empty type name")
	}
	// Bare dotted class name, e.g. "java.lang.Object".
	if strings.Contains(key, ".") || isUpperStart(key) {
		return newReferenceAdapter(key), nil
	}
	return nil, jerr.New(jerr.UnsupportedType, "unknown type %q", key)
}

func isUpperStart(s string) bool {
	return len(s) > 0 && s[0] >= 'A' && s[0] <= 'Z'
}

func (r *Registry) buildArray(key string) (*TypeAdapter, error) {
	elemDesc := key[1:]
	if elemDesc == "" {
		return nil, jerr.New(jerr.UnsupportedType, "malformed array type %q", key)
	}

	var elemTypeName string
	switch {
	case strings.HasPrefix(elemDesc, "["):
		elemTypeName = elemDesc
	case strings.HasPrefix(elemDesc, "L") && strings.HasSuffix(elemDesc, ";"):
		elemTypeName = elemDesc
	default:
		return nil, jerr.New(jerr.UnsupportedType, "malformed array element descriptor %q", elemDesc)
	}

	elem, err := r.Lookup(elemTypeName)
	if err != nil {
		return nil, err
	}
	className := fmt.Sprintf("%s[]", displayName(elem))
	if r.host == nil {
		return nil, jerr.New(jerr.UnsupportedType, "object array type resolved before a class host was installed")
	}
	return newObjectArrayAdapter(className, elem, r), nil
}

func displayName(a *TypeAdapter) string {
	return a.ClassName
}
