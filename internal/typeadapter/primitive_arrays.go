package typeadapter

import (
	"fmt"
	"math"

	"github.com/halvard/jbridge/internal/jnienv"
)

// newPrimitiveArrayAdapter builds a TypeAdapter for a primitive array
// type (spec §4.A: "Primitive arrays ([Z, [B, [C, [S, [I, [J, [F, [D)").
// elemLetter is the JNI array-element letter (Z B C S I J F D); toWord/
// fromWord convert one element to/from its raw JNI word.
func newPrimitiveArrayAdapter[T any](
	className string,
	elemLetter byte,
	toWord func(T) uint64,
	fromWord func(uint64) T,
) *TypeAdapter {
	return &TypeAdapter{
		ClassName:      className,
		RawWireType:    RawPointer,
		WordSize:       1,
		AllocatesLocal: true,
		IsCompatible: func(v any) bool {
			if v == nil {
				return true
			}
			_, ok := v.([]T)
			return ok
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			arr := jnienv.Ref(raw)
			if arr == 0 {
				return ([]T)(nil), nil
			}
			length, err := env.GetArrayLength(arr)
			if err != nil {
				return nil, fmt.Errorf("typeadapter: array length: %w", err)
			}
			words, err := env.GetPrimitiveArrayRegion(elemLetter, arr, 0, length)
			if err != nil {
				return nil, fmt.Errorf("typeadapter: read %c array: %w", elemLetter, err)
			}
			out := make([]T, length)
			for i, w := range words {
				out[i] = fromWord(w)
			}
			return out, nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			if v == nil {
				return 0, nil
			}
			xs, ok := v.([]T)
			if !ok {
				return 0, fmt.Errorf("typeadapter: not a %c array: %#v", elemLetter, v)
			}
			if xs == nil {
				return 0, nil
			}
			arr, err := env.NewPrimitiveArray(elemLetter, len(xs))
			if err != nil {
				return 0, fmt.Errorf("typeadapter: alloc %c array: %w", elemLetter, err)
			}
			if len(xs) == 0 {
				return uint64(arr), nil
			}
			words := make([]uint64, len(xs))
			for i, x := range xs {
				words[i] = toWord(x)
			}
			if err := env.SetPrimitiveArrayRegion(elemLetter, arr, 0, words); err != nil {
				return 0, fmt.Errorf("typeadapter: write %c array: %w", elemLetter, err)
			}
			return uint64(arr), nil
		},
	}
}

func registerPrimitiveArrays(r *Registry) {
	r.put("[Z", newPrimitiveArrayAdapter[bool]("boolean[]", 'Z',
		func(b bool) uint64 {
			if b {
				return 1
			}
			return 0
		},
		func(w uint64) bool { return w != 0 }))

	r.put("[B", newPrimitiveArrayAdapter[int8]("byte[]", 'B',
		func(b int8) uint64 { return uint64(uint8(b)) },
		func(w uint64) int8 { return int8(uint8(w)) }))

	r.put("[C", newPrimitiveArrayAdapter[uint16]("char[]", 'C',
		func(c uint16) uint64 { return uint64(c) },
		func(w uint64) uint16 { return uint16(w) }))

	r.put("[S", newPrimitiveArrayAdapter[int16]("short[]", 'S',
		func(s int16) uint64 { return uint64(uint16(s)) },
		func(w uint64) int16 { return int16(uint16(w)) }))

	r.put("[I", newPrimitiveArrayAdapter[int32]("int[]", 'I',
		func(i int32) uint64 { return uint64(uint32(i)) },
		func(w uint64) int32 { return int32(uint32(w)) }))

	r.put("[J", newPrimitiveArrayAdapter[int64]("long[]", 'J',
		func(i int64) uint64 { return uint64(i) },
		func(w uint64) int64 { return int64(w) }))

	r.put("[F", newPrimitiveArrayAdapter[float32]("float[]", 'F',
		func(f float32) uint64 { return uint64(math.Float32bits(f)) },
		func(w uint64) float32 { return math.Float32frombits(uint32(w)) }))

	r.put("[D", newPrimitiveArrayAdapter[float64]("double[]", 'D',
		func(f float64) uint64 { return math.Float64bits(f) },
		func(w uint64) float64 { return math.Float64frombits(w) }))
}
