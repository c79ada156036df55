package typeadapter

import (
	"fmt"
	"math"

	"github.com/halvard/jbridge/internal/jnienv"
)

func noAlloc(_ uint64, _ jnienv.Env, _ InstanceHost, _ jnienv.Ref) (any, error) { return nil, nil }

func registerPrimitives(r *Registry) {
	r.put("void", &TypeAdapter{
		ClassName:   "void",
		RawWireType: RawVoid,
		WordSize:    0,
		ByteSize:    0,
		IsCompatible: func(v any) bool { return v == nil },
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return nil, nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			return 0, nil
		},
	})

	r.put("boolean", &TypeAdapter{
		ClassName:   "boolean",
		RawWireType: RawUint8,
		WordSize:    1,
		ByteSize:    1,
		IsCompatible: func(v any) bool {
			_, ok := v.(bool)
			return ok
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return raw != 0, nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			b, ok := v.(bool)
			if !ok {
				return 0, fmt.Errorf("not a boolean: %#v", v)
			}
			if b {
				return 1, nil
			}
			return 0, nil
		},
	})

	r.put("byte", &TypeAdapter{
		ClassName:   "byte",
		RawWireType: RawInt8,
		WordSize:    1,
		ByteSize:    1,
		IsCompatible: func(v any) bool {
			switch n := v.(type) {
			case int8:
				return true
			case int:
				return n >= -128 && n <= 127
			case int32:
				return n >= -128 && n <= 127
			case int64:
				return n >= -128 && n <= 127
			case float64:
				return n == math.Trunc(n) && n >= -128 && n <= 127
			}
			return false
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return int8(uint8(raw)), nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			n, err := asInt64(v)
			if err != nil {
				return 0, err
			}
			return uint64(uint8(int8(n))), nil
		},
	})

	r.put("short", &TypeAdapter{
		ClassName:   "short",
		RawWireType: RawInt16,
		WordSize:    1,
		ByteSize:    2,
		IsCompatible: func(v any) bool {
			n, err := asInt64(v)
			if err != nil {
				return false
			}
			return n >= -32768 && n <= 32767
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return int16(uint16(raw)), nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			n, err := asInt64(v)
			if err != nil {
				return 0, err
			}
			return uint64(uint16(int16(n))), nil
		},
	})

	r.put("char", &TypeAdapter{
		ClassName:   "char",
		RawWireType: RawUint16,
		WordSize:    1,
		ByteSize:    2,
		IsCompatible: func(v any) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			runes := []rune(s)
			return len(runes) == 1 && runes[0] <= 0xFFFF
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return string(rune(uint16(raw))), nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			s, ok := v.(string)
			if !ok {
				return 0, fmt.Errorf("not a char string: %#v", v)
			}
			runes := []rune(s)
			if len(runes) != 1 {
				return 0, fmt.Errorf("char requires exactly one code unit, got %q", s)
			}
			return uint64(uint16(runes[0])), nil
		},
	})

	r.put("int", &TypeAdapter{
		ClassName:   "int",
		RawWireType: RawInt32,
		WordSize:    1,
		ByteSize:    4,
		IsCompatible: func(v any) bool {
			n, err := asInt64(v)
			if err != nil {
				return false
			}
			return n >= math.MinInt32 && n <= math.MaxInt32
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return int32(uint32(raw)), nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			n, err := asInt64(v)
			if err != nil {
				return 0, err
			}
			return uint64(uint32(int32(n))), nil
		},
	})

	r.put("long", &TypeAdapter{
		ClassName:   "long",
		RawWireType: RawInt64,
		WordSize:    2,
		ByteSize:    8,
		IsCompatible: func(v any) bool {
			_, err := asInt64(v)
			return err == nil
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return int64(raw), nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			n, err := asInt64(v)
			if err != nil {
				return 0, err
			}
			return uint64(n), nil
		},
	})

	r.put("float", &TypeAdapter{
		ClassName:   "float",
		RawWireType: RawFloat,
		WordSize:    1,
		ByteSize:    4,
		IsCompatible: func(v any) bool {
			_, err := asFloat64(v)
			return err == nil
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return math.Float32frombits(uint32(raw)), nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			f, err := asFloat64(v)
			if err != nil {
				return 0, err
			}
			return uint64(math.Float32bits(float32(f))), nil
		},
	})

	r.put("double", &TypeAdapter{
		ClassName:   "double",
		RawWireType: RawDouble,
		WordSize:    2,
		ByteSize:    8,
		IsCompatible: func(v any) bool {
			_, err := asFloat64(v)
			return err == nil
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			return math.Float64frombits(raw), nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			f, err := asFloat64(v)
			if err != nil {
				return 0, err
			}
			return math.Float64bits(f), nil
		},
	})
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integral value: %v", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("not a number: %#v", v)
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a number: %#v", v)
}
