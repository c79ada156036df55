package classwrap

import (
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
)

// GetField reads f off receiver (0 for a static field), pushing a local
// frame sized for a reference-typed result per spec §4.C item 3.
func (c *Cache) GetField(f *member.Field, receiver jnienv.Ref) (any, error) {
	capacity := 2
	if f.Type.AllocatesLocal {
		capacity++
	}
	if err := c.env.PushLocalFrame(capacity); err != nil {
		return nil, jerr.New(jerr.OutOfMemory, "push local frame for field %s: %v", f.Name, err)
	}

	var raw uint64
	var err error
	if f.Kind == member.StaticField {
		raw, err = c.env.GetStaticFieldRaw(f.Type.ClassName, f.DeclClass, f.ID)
	} else {
		raw, err = c.env.GetFieldRaw(f.Type.ClassName, receiver, f.ID)
	}
	if err != nil {
		c.env.PopLocalFrame(0)
		return nil, jerr.New(jerr.ReflectionFailed, "get field %s: %v", f.Name, err)
	}
	if c.env.ExceptionCheck() {
		throwable := c.env.ExceptionOccurred()
		c.env.ExceptionClear()
		c.env.PopLocalFrame(0)
		return nil, jerr.NewJavaException(uint64(throwable), "get field %s raised a pending exception", f.Name)
	}

	if !f.Type.AllocatesLocal {
		c.env.PopLocalFrame(0)
		return f.Type.FromJni(raw, c.env, c, receiver)
	}
	kept := c.env.PopLocalFrame(jnienv.Ref(raw))
	return f.Type.FromJni(uint64(kept), c.env, c, receiver)
}

// SetField writes v to f on receiver (0 for a static field), rejecting
// an incompatible value before marshaling (spec §8: "k.f = \"x\" on an
// int field fails IncompatibleArgument").
func (c *Cache) SetField(f *member.Field, receiver jnienv.Ref, v any) error {
	if !f.Type.IsCompatible(v) {
		return jerr.New(jerr.IncompatibleArgument, "field %s expects %s", f.Name, f.Type.ClassName)
	}

	capacity := 2
	if f.Type.AllocatesLocal {
		capacity++
	}
	if err := c.env.PushLocalFrame(capacity); err != nil {
		return jerr.New(jerr.OutOfMemory, "push local frame for field %s: %v", f.Name, err)
	}
	defer c.env.PopLocalFrame(0)

	word, err := f.Type.ToJni(v, c.env, c, receiver)
	if err != nil {
		return jerr.New(jerr.IncompatibleArgument, "field %s: %v", f.Name, err)
	}

	if f.Kind == member.StaticField {
		err = c.env.SetStaticFieldRaw(f.Type.ClassName, f.DeclClass, f.ID, word)
	} else {
		err = c.env.SetFieldRaw(f.Type.ClassName, receiver, f.ID, word)
	}
	if err != nil {
		return jerr.New(jerr.ReflectionFailed, "set field %s: %v", f.Name, err)
	}
	if c.env.ExceptionCheck() {
		throwable := c.env.ExceptionOccurred()
		c.env.ExceptionClear()
		return jerr.NewJavaException(uint64(throwable), "set field %s raised a pending exception", f.Name)
	}
	return nil
}
