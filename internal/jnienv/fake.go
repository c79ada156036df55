package jnienv

import (
	"fmt"
	"strings"
	"sync"
)

// FakeClass is a test-double class description, analogous to what a real
// Env would obtain from a running Dalvik/ART process.
type FakeClass struct {
	Name         string // fully-qualified, dotted form
	Super        string // fully-qualified super name, "" for none
	Methods      []ReflectedMethod
	Fields       []ReflectedField
	Constructors []ReflectedConstructor
}

// Fake is an in-memory Env sufficient to drive Components A-F in tests,
// mirroring the teacher's stubbed JNI vtable: every reference is a
// monotonically increasing handle out of a dedicated band, tracked in a
// mutex-guarded map.
type Fake struct {
	mu sync.Mutex

	classes   map[string]*FakeClass // fully-qualified name -> class
	classRefs map[Ref]string        // handle -> class name
	nextClass Ref

	objects    map[Ref]string // handle -> class name of the instance
	nextObject Ref

	strings map[Ref]string
	nextStr Ref

	arrays    map[Ref]*fakeArray
	nextArray Ref

	methodSeq map[MethodID]bool
	nextMID   MethodID
	fieldSeq  map[FieldID]bool
	nextFID   FieldID

	instanceFields map[Ref]map[FieldID]uint64
	staticFields   map[string]map[FieldID]uint64

	pendingThrow Ref

	// Invoke, when set, is called for every CallMethodA/CallStaticMethodA
	// so tests can script return values per (class, methodID).
	Invoke func(class string, m MethodID, direct bool, args []uint64) (uint64, error)
}

type fakeArray struct {
	elem    byte
	data    []uint64
	objElem Ref // element class for object arrays, 0 for primitive
	isObj   bool
}

// NewFake creates an empty fake environment.
func NewFake() *Fake {
	return &Fake{
		classes:        make(map[string]*FakeClass),
		classRefs:      make(map[Ref]string),
		nextClass:      0x1000,
		objects:        make(map[Ref]string),
		nextObject:     0x100000,
		strings:        make(map[Ref]string),
		nextStr:        0x200000,
		arrays:         make(map[Ref]*fakeArray),
		nextArray:      0x300000,
		methodSeq:      make(map[MethodID]bool),
		nextMID:        1,
		fieldSeq:       make(map[FieldID]bool),
		nextFID:        1,
		instanceFields: make(map[Ref]map[FieldID]uint64),
		staticFields:   make(map[string]map[FieldID]uint64),
	}
}

// RegisterClass installs a class description, assigning MethodID/FieldID
// values to any member that doesn't already carry one.
func (f *Fake) RegisterClass(c *FakeClass) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range c.Methods {
		if c.Methods[i].ID == 0 {
			c.Methods[i].ID = f.nextMID
			f.nextMID++
		}
	}
	for i := range c.Constructors {
		if c.Constructors[i].ID == 0 {
			c.Constructors[i].ID = f.nextMID
			f.nextMID++
		}
	}
	for i := range c.Fields {
		if c.Fields[i].ID == 0 {
			c.Fields[i].ID = f.nextFID
			f.nextFID++
		}
	}
	f.classes[c.Name] = c
}

// NewInstance allocates a fake instance of class className without
// calling RegisterClass's constructors, used by tests to seed live
// objects (e.g. for heap enumeration fixtures).
func (f *Fake) NewInstance(className string) Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.nextObject
	f.nextObject += 8
	f.objects[ref] = className
	return ref
}

func slashToDot(name string) string {
	name = strings.TrimPrefix(name, "L")
	name = strings.TrimSuffix(name, ";")
	return strings.ReplaceAll(name, "/", ".")
}

func (f *Fake) FindClass(slashName string) (Ref, error) {
	name := strings.ReplaceAll(slashName, "/", ".")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.classes[name]; !ok {
		return 0, fmt.Errorf("class not found: %s", name)
	}
	for ref, n := range f.classRefs {
		if n == name {
			return ref, nil
		}
	}
	ref := f.nextClass
	f.nextClass += 8
	f.classRefs[ref] = name
	return ref, nil
}

func (f *Fake) GetSuperclass(class Ref) Ref {
	f.mu.Lock()
	name := f.classRefs[class]
	c := f.classes[name]
	f.mu.Unlock()
	if c == nil || c.Super == "" {
		return 0
	}
	ref, err := f.FindClass(c.Super)
	if err != nil {
		return 0
	}
	return ref
}

func (f *Fake) GetObjectClass(obj Ref) Ref {
	f.mu.Lock()
	name := f.objects[obj]
	f.mu.Unlock()
	if name == "" {
		return 0
	}
	ref, _ := f.FindClass(strings.ReplaceAll(name, ".", "/"))
	return ref
}

func (f *Fake) IsInstanceOf(obj Ref, class Ref) bool {
	f.mu.Lock()
	objClass := f.objects[obj]
	wantClass := f.classRefs[class]
	f.mu.Unlock()
	if obj == 0 {
		return true
	}
	for name := objClass; name != ""; {
		if name == wantClass {
			return true
		}
		f.mu.Lock()
		c := f.classes[name]
		f.mu.Unlock()
		if c == nil {
			break
		}
		name = c.Super
	}
	return false
}

func (f *Fake) IsSameObject(a, b Ref) bool { return a == b }

func (f *Fake) GetClassName(class Ref) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classRefs[class]
}

func (f *Fake) NewGlobalRef(ref Ref) Ref { return ref }
func (f *Fake) DeleteGlobalRef(ref Ref)  {}
func (f *Fake) NewLocalRef(ref Ref) Ref  { return ref }
func (f *Fake) DeleteLocalRef(ref Ref)   {}

func (f *Fake) PushLocalFrame(capacity int) error { return nil }
func (f *Fake) PopLocalFrame(result Ref) Ref       { return result }

func (f *Fake) AllocObject(class Ref) (Ref, error) {
	f.mu.Lock()
	name := f.classRefs[class]
	f.mu.Unlock()
	if name == "" {
		return 0, fmt.Errorf("alloc: unknown class ref")
	}
	return f.NewInstance(name), nil
}

func (f *Fake) NewObjectA(class Ref, ctor MethodID, args []uint64) (Ref, error) {
	return f.AllocObject(class)
}

func (f *Fake) GetDeclaredMethods(class Ref) ([]ReflectedMethod, error) {
	f.mu.Lock()
	c := f.classes[f.classRefs[class]]
	f.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("unknown class ref")
	}
	return c.Methods, nil
}

func (f *Fake) GetDeclaredFields(class Ref) ([]ReflectedField, error) {
	f.mu.Lock()
	c := f.classes[f.classRefs[class]]
	f.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("unknown class ref")
	}
	return c.Fields, nil
}

func (f *Fake) GetDeclaredConstructors(class Ref) ([]ReflectedConstructor, error) {
	f.mu.Lock()
	c := f.classes[f.classRefs[class]]
	f.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("unknown class ref")
	}
	return c.Constructors, nil
}

func (f *Fake) FromReflectedMethod(m Ref) MethodID { return MethodID(m) }
func (f *Fake) FromReflectedField(f2 Ref) FieldID  { return FieldID(f2) }

func (f *Fake) findMember(class Ref, name string) *FakeClass {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classes[f.classRefs[class]]
}

func (f *Fake) GetMethodID(class Ref, name, sig string) (MethodID, error) {
	c := f.findMember(class, name)
	if c == nil {
		return 0, fmt.Errorf("unknown class")
	}
	for _, m := range c.Methods {
		if m.Name == name && !m.IsStatic {
			return m.ID, nil
		}
	}
	for _, m := range c.Constructors {
		if name == "<init>" {
			return m.ID, nil
		}
	}
	return 0, fmt.Errorf("no such method %s", name)
}

func (f *Fake) GetStaticMethodID(class Ref, name, sig string) (MethodID, error) {
	c := f.findMember(class, name)
	if c == nil {
		return 0, fmt.Errorf("unknown class")
	}
	for _, m := range c.Methods {
		if m.Name == name && m.IsStatic {
			return m.ID, nil
		}
	}
	return 0, fmt.Errorf("no such static method %s", name)
}

func (f *Fake) GetFieldID(class Ref, name, sig string) (FieldID, error) {
	c := f.findMember(class, name)
	if c == nil {
		return 0, fmt.Errorf("unknown class")
	}
	for _, fd := range c.Fields {
		if fd.Name == name && !fd.IsStatic {
			return fd.ID, nil
		}
	}
	return 0, fmt.Errorf("no such field %s", name)
}

func (f *Fake) GetStaticFieldID(class Ref, name, sig string) (FieldID, error) {
	c := f.findMember(class, name)
	if c == nil {
		return 0, fmt.Errorf("unknown class")
	}
	for _, fd := range c.Fields {
		if fd.Name == name && fd.IsStatic {
			return fd.ID, nil
		}
	}
	return 0, fmt.Errorf("no such static field %s", name)
}

func (f *Fake) CallMethodA(retType string, direct bool, obj Ref, declClass Ref, m MethodID, args []uint64) (uint64, error) {
	className := f.objects[obj]
	if f.Invoke != nil {
		return f.Invoke(className, m, direct, args)
	}
	return 0, nil
}

func (f *Fake) CallStaticMethodA(retType string, class Ref, m MethodID, args []uint64) (uint64, error) {
	f.mu.Lock()
	className := f.classRefs[class]
	f.mu.Unlock()
	if f.Invoke != nil {
		return f.Invoke(className, m, false, args)
	}
	return 0, nil
}

func (f *Fake) GetFieldRaw(fieldType string, obj Ref, fid FieldID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instanceFields[obj][fid], nil
}

func (f *Fake) SetFieldRaw(fieldType string, obj Ref, fid FieldID, v uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.instanceFields[obj] == nil {
		f.instanceFields[obj] = make(map[FieldID]uint64)
	}
	f.instanceFields[obj][fid] = v
	return nil
}

func (f *Fake) GetStaticFieldRaw(fieldType string, class Ref, fid FieldID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.classRefs[class]
	return f.staticFields[name][fid], nil
}

func (f *Fake) SetStaticFieldRaw(fieldType string, class Ref, fid FieldID, v uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.classRefs[class]
	if f.staticFields[name] == nil {
		f.staticFields[name] = make(map[FieldID]uint64)
	}
	f.staticFields[name][fid] = v
	return nil
}

func (f *Fake) NewStringUTF(s string) Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.nextStr
	f.nextStr += 8
	f.strings[ref] = s
	return ref
}

func (f *Fake) GetStringUTFChars(s Ref) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	str, ok := f.strings[s]
	if !ok {
		return "", fmt.Errorf("not a string ref")
	}
	return str, nil
}

func (f *Fake) GetArrayLength(arr Ref) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.arrays[arr]
	if !ok {
		return 0, fmt.Errorf("not an array ref")
	}
	return len(a.data), nil
}

func (f *Fake) NewPrimitiveArray(elem byte, length int) (Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.nextArray
	f.nextArray += 8
	f.arrays[ref] = &fakeArray{elem: elem, data: make([]uint64, length)}
	return ref, nil
}

func (f *Fake) GetPrimitiveArrayRegion(elem byte, arr Ref, start, length int) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.arrays[arr]
	if !ok {
		return nil, fmt.Errorf("not an array ref")
	}
	if start < 0 || start+length > len(a.data) {
		return nil, fmt.Errorf("array region out of bounds")
	}
	out := make([]uint64, length)
	copy(out, a.data[start:start+length])
	return out, nil
}

func (f *Fake) SetPrimitiveArrayRegion(elem byte, arr Ref, start int, data []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.arrays[arr]
	if !ok {
		return fmt.Errorf("not an array ref")
	}
	if start < 0 || start+len(data) > len(a.data) {
		return fmt.Errorf("array region out of bounds")
	}
	copy(a.data[start:], data)
	return nil
}

func (f *Fake) NewObjectArray(length int, elemClass Ref) (Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.nextArray
	f.nextArray += 8
	f.arrays[ref] = &fakeArray{isObj: true, objElem: elemClass, data: make([]uint64, length)}
	return ref, nil
}

func (f *Fake) GetObjectArrayElement(arr Ref, index int) (Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.arrays[arr]
	if !ok || index < 0 || index >= len(a.data) {
		return 0, fmt.Errorf("array index out of bounds")
	}
	return Ref(a.data[index]), nil
}

func (f *Fake) SetObjectArrayElement(arr Ref, index int, val Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.arrays[arr]
	if !ok || index < 0 || index >= len(a.data) {
		return fmt.Errorf("array index out of bounds")
	}
	a.data[index] = uint64(val)
	return nil
}

func (f *Fake) ExceptionCheck() bool { return f.pendingThrow != 0 }
func (f *Fake) ExceptionClear()      { f.pendingThrow = 0 }
func (f *Fake) ExceptionOccurred() Ref {
	return f.pendingThrow
}
func (f *Fake) Throw(t Ref) error {
	f.pendingThrow = t
	return nil
}
