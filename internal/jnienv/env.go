// Package jnienv defines the JNI function-table contract the reflection
// bridge is built against. The real implementation (the process-attach
// mechanism's JNIEnv* accessor) is an external collaborator per spec §6;
// this package only states the contract and, in fake.go, a test double
// sufficient to exercise Components A-F without a live VM.
package jnienv

// Ref is an opaque JNI reference: a jobject, jclass, jstring, or array
// handle. Zero is the null reference.
type Ref uint64

// MethodID and FieldID are opaque JNI member identifiers.
type MethodID uint64
type FieldID uint64

// ReflectedMethod describes one java.lang.reflect.Method as obtained via
// Class.getDeclaredMethods.
type ReflectedMethod struct {
	Name       string
	ReturnType string // getTypeName() form, e.g. "int", "java.lang.String", "int[]"
	ParamTypes []string
	IsStatic   bool
	IsVarArgs  bool
	ID         MethodID
}

// ReflectedField describes one java.lang.reflect.Field.
type ReflectedField struct {
	Name     string
	Type     string
	IsStatic bool
	ID       FieldID
}

// ReflectedConstructor describes one java.lang.reflect.Constructor.
type ReflectedConstructor struct {
	ParamTypes []string
	IsVarArgs  bool
	ID         MethodID
}

// Env is the JNI function-table contract required by §6: class
// resolution, reference lifecycle, reflective enumeration, member ID
// lookup, invocation, field access, strings, arrays, and exceptions.
//
// Invocation and field accessors exchange values as raw JNI words
// (uint64): booleans/bytes/chars/shorts/ints occupy the low bits, longs
// and object refs occupy the full word, and floats/doubles are the
// IEEE-754 bit pattern of the value. TypeAdapter.toJni/fromJni perform
// the conversion to and from host Go values; Env never sees a host value
// directly.
type Env interface {
	// Class resolution
	FindClass(slashName string) (Ref, error)
	GetSuperclass(class Ref) Ref
	GetObjectClass(obj Ref) Ref
	IsInstanceOf(obj Ref, class Ref) bool
	IsSameObject(a, b Ref) bool
	GetClassName(class Ref) string

	// Reference lifecycle
	NewGlobalRef(ref Ref) Ref
	DeleteGlobalRef(ref Ref)
	NewLocalRef(ref Ref) Ref
	DeleteLocalRef(ref Ref)
	PushLocalFrame(capacity int) error
	PopLocalFrame(result Ref) Ref

	// Allocation / construction
	AllocObject(class Ref) (Ref, error)
	NewObjectA(class Ref, ctor MethodID, args []uint64) (Ref, error)

	// Reflective enumeration
	GetDeclaredMethods(class Ref) ([]ReflectedMethod, error)
	GetDeclaredFields(class Ref) ([]ReflectedField, error)
	GetDeclaredConstructors(class Ref) ([]ReflectedConstructor, error)
	FromReflectedMethod(m Ref) MethodID
	FromReflectedField(f Ref) FieldID

	// Member ID lookup
	GetMethodID(class Ref, name, sig string) (MethodID, error)
	GetStaticMethodID(class Ref, name, sig string) (MethodID, error)
	GetFieldID(class Ref, name, sig string) (FieldID, error)
	GetStaticFieldID(class Ref, name, sig string) (FieldID, error)

	// Invocation. retType/argTypes use JNI type names ("int", "void",
	// "java.lang.String", "int[]", ...). direct selects the
	// CallNonvirtual family (re-entry path); otherwise CallX (virtual).
	CallMethodA(retType string, direct bool, obj Ref, declClass Ref, m MethodID, args []uint64) (uint64, error)
	CallStaticMethodA(retType string, class Ref, m MethodID, args []uint64) (uint64, error)

	// Fields
	GetFieldRaw(fieldType string, obj Ref, f FieldID) (uint64, error)
	SetFieldRaw(fieldType string, obj Ref, f FieldID, v uint64) error
	GetStaticFieldRaw(fieldType string, class Ref, f FieldID) (uint64, error)
	SetStaticFieldRaw(fieldType string, class Ref, f FieldID, v uint64) error

	// Strings
	NewStringUTF(s string) Ref
	GetStringUTFChars(s Ref) (string, error)

	// Primitive arrays, keyed by JNI element letter: Z B C S I J F D
	GetArrayLength(arr Ref) (int, error)
	NewPrimitiveArray(elem byte, length int) (Ref, error)
	GetPrimitiveArrayRegion(elem byte, arr Ref, start, length int) ([]uint64, error)
	SetPrimitiveArrayRegion(elem byte, arr Ref, start int, data []uint64) error

	// Object arrays
	NewObjectArray(length int, elemClass Ref) (Ref, error)
	GetObjectArrayElement(arr Ref, index int) (Ref, error)
	SetObjectArrayElement(arr Ref, index int, val Ref) error

	// Exceptions
	ExceptionCheck() bool
	ExceptionClear()
	ExceptionOccurred() Ref
	Throw(t Ref) error
}
