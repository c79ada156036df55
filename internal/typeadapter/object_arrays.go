package typeadapter

import (
	"fmt"

	"github.com/halvard/jbridge/internal/jnienv"
)

// newObjectArrayAdapter builds a TypeAdapter for "[L...;" and "[[...;"
// descriptors: arrays whose elements are themselves reference types or
// arrays, recursively marshaled through the element's own TypeAdapter
// (spec §4.A).
func newObjectArrayAdapter(className string, elem *TypeAdapter, r *Registry) *TypeAdapter {
	return &TypeAdapter{
		ClassName:      className,
		RawWireType:    RawPointer,
		WordSize:       1,
		AllocatesLocal: true,
		IsCompatible: func(v any) bool {
			if v == nil {
				return true
			}
			xs, ok := v.([]any)
			if !ok {
				return false
			}
			for _, x := range xs {
				if !elem.IsCompatible(x) {
					return false
				}
			}
			return true
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			arr := jnienv.Ref(raw)
			if arr == 0 {
				return ([]any)(nil), nil
			}
			length, err := env.GetArrayLength(arr)
			if err != nil {
				return nil, fmt.Errorf("typeadapter: object array length: %w", err)
			}
			out := make([]any, length)
			for i := 0; i < length; i++ {
				elemRef, err := env.GetObjectArrayElement(arr, i)
				if err != nil {
					return nil, fmt.Errorf("typeadapter: get element %d: %w", i, err)
				}
				v, err := elem.FromJni(uint64(elemRef), env, host, receiver)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			if v == nil {
				return 0, nil
			}
			xs, ok := v.([]any)
			if !ok {
				return 0, fmt.Errorf("typeadapter: not an object array: %#v", v)
			}
			if xs == nil {
				return 0, nil
			}
			elemClass, err := host.ResolveClass(elem.ClassName)
			if err != nil {
				return 0, fmt.Errorf("typeadapter: resolve element class %s: %w", elem.ClassName, err)
			}
			arr, err := env.NewObjectArray(len(xs), elemClass)
			if err != nil {
				return 0, fmt.Errorf("typeadapter: alloc object array: %w", err)
			}
			for i, x := range xs {
				word, err := elem.ToJni(x, env, host, receiver)
				if err != nil {
					return 0, fmt.Errorf("typeadapter: marshal element %d: %w", i, err)
				}
				if err := env.SetObjectArrayElement(arr, i, jnienv.Ref(word)); err != nil {
					return 0, fmt.Errorf("typeadapter: set element %d: %w", i, err)
				}
			}
			return uint64(arr), nil
		},
	}
}
