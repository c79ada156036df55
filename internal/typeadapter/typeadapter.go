// Package typeadapter implements Component A: for each Java type name, a
// descriptor with raw-wire type, byte size, compatibility predicate, and
// fromJni/toJni converters (spec §4.A).
package typeadapter

import "github.com/halvard/jbridge/internal/jnienv"

// RawType is the JNI wire representation a TypeAdapter marshals to/from.
type RawType int

const (
	RawUint8 RawType = iota
	RawInt8
	RawUint16
	RawInt16
	RawInt32
	RawInt64
	RawFloat
	RawDouble
	RawVoid
	RawPointer
)

// Instance is the minimal view of a ClassInstance (Component B) that the
// registry needs to marshal reference-typed values, without importing
// package classwrap (which itself depends on typeadapter).
type Instance interface {
	Handle() jnienv.Ref
	ClassName() string
}

// InstanceHost is implemented by Component B's Cache and lets reference
// TypeAdapters cast a raw handle to a wrapped Instance, and resolve a
// class name to a class handle (for object-array element classes),
// without a circular package dependency.
type InstanceHost interface {
	Cast(handle jnienv.Ref, className string) (Instance, error)
	ResolveClass(className string) (jnienv.Ref, error)
}

// TypeAdapter describes one Java type's marshaling behavior, per the
// data model in spec §3.
type TypeAdapter struct {
	ClassName      string
	RawWireType    RawType
	WordSize       int // dalvik register words this type occupies (1, or 2 for long/double)
	ByteSize       int // size in bytes; 0 for reference/array types
	AllocatesLocal bool

	IsCompatible func(v any) bool
	// FromJni converts a raw JNI word into a host value. receiver is the
	// already-wrapped Instance the raw value came from (may be nil), used
	// to preserve identity when the handle equals the receiver's own
	// handle instead of minting a fresh Instance for it (spec §4.A).
	FromJni func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error)
	ToJni   func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error)
}
