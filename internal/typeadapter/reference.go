package typeadapter

import (
	"fmt"
	"strings"

	"github.com/halvard/jbridge/internal/jnienv"
)

const (
	javaLangString       = "java.lang.String"
	javaLangCharSequence = "java.lang.CharSequence"
)

// newReferenceAdapter builds the TypeAdapter for a reference type named
// className (dotted form, no leading 'L' or trailing ';').
func newReferenceAdapter(className string) *TypeAdapter {
	autoBoxesString := className == javaLangString || className == javaLangCharSequence

	return &TypeAdapter{
		ClassName:      className,
		RawWireType:    RawPointer,
		WordSize:       1,
		ByteSize:       0,
		AllocatesLocal: true,
		IsCompatible: func(v any) bool {
			if v == nil {
				return true
			}
			if _, ok := v.(Instance); ok {
				return true
			}
			if _, ok := v.(string); ok {
				return autoBoxesString
			}
			return false
		},
		FromJni: func(raw uint64, env jnienv.Env, host InstanceHost, receiver Instance) (any, error) {
			handle := jnienv.Ref(raw)
			if handle == 0 {
				return nil, nil
			}
			if className == javaLangString {
				s, err := env.GetStringUTFChars(handle)
				if err != nil {
					return nil, fmt.Errorf("typeadapter: read string: %w", err)
				}
				return s, nil
			}
			if receiver != nil && handle == receiver.Handle() {
				return receiver, nil
			}
			inst, err := host.Cast(handle, className)
			if err != nil {
				return nil, err
			}
			return inst, nil
		},
		ToJni: func(v any, env jnienv.Env, host InstanceHost, receiver jnienv.Ref) (uint64, error) {
			if v == nil {
				return 0, nil
			}
			if s, ok := v.(string); ok {
				if !autoBoxesString {
					return 0, fmt.Errorf("typeadapter: %s does not accept a host string", className)
				}
				return uint64(env.NewStringUTF(s)), nil
			}
			if inst, ok := v.(Instance); ok {
				return uint64(inst.Handle()), nil
			}
			return 0, fmt.Errorf("typeadapter: incompatible value for %s: %#v", className, v)
		},
	}
}

// classFileType normalizes a JNI type descriptor or getTypeName() result
// into the dotted class name form the registry keys reference types by.
// Accepts "Lcom.example.Foo;", "Lcom/example/Foo;", and bare
// "com.example.Foo".
func classFileType(raw string) string {
	name := raw
	if strings.HasPrefix(name, "L") && strings.HasSuffix(name, ";") {
		name = name[1 : len(name)-1]
	}
	return strings.ReplaceAll(name, "/", ".")
}
