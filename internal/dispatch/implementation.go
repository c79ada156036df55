package dispatch

import (
	"github.com/halvard/jbridge/internal/hook"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/typeadapter"
)

// HostImplementation is a replacement method body expressed in host
// values rather than raw JNI words; dispatch performs the marshaling
// on both sides of the call (spec §4.E).
type HostImplementation func(receiver any, args []any) (any, error)

// GetImplementation reports whether this dispatcher's lone overload
// currently has a replacement installed.
func (d *Dispatcher) GetImplementation() (bool, error) {
	m, err := d.implementable()
	if err != nil {
		return false, err
	}
	return m.IsHooked(), nil
}

// SetImplementation installs fn as the replacement for this
// dispatcher's lone overload, or (fn == nil) restores the original.
// Constructors cannot be re-implemented; only their underlying
// `<init>` can (spec §4.E "Constraints").
func (d *Dispatcher) SetImplementation(fn HostImplementation) error {
	if d.hooks == nil {
		return jerr.New(jerr.TrampolineNotFound, "no Api attached; hooking is unavailable")
	}
	m, err := d.implementable()
	if err != nil {
		return err
	}
	if fn == nil {
		return d.hooks.Uninstall(m)
	}
	return d.hooks.Install(m, d.wrapHostImplementation(m, fn))
}

func (d *Dispatcher) implementable() (*member.Method, error) {
	if d.Mode == ModeNewConstructor {
		return nil, jerr.New(jerr.NoSuchMember, "$new cannot be re-implemented; replace the underlying <init> instead")
	}
	return d.single()
}

// wrapHostImplementation adapts a host-level callback to the raw
// JNI-word Implementation signature hook.Engine installs: unmarshal
// the receiver and arguments, invoke fn, marshal the result back (or
// convert a JavaException into a native Throw per spec §7).
func (d *Dispatcher) wrapHostImplementation(m *member.Method, fn HostImplementation) hook.Implementation {
	return func(raw []uint64) (uint64, error) {
		var receiver any
		var receiverInst typeadapter.Instance
		if m.Kind != member.StaticMethod && len(raw) > 0 {
			inst, err := d.host.Cast(jnienv.Ref(raw[0]), d.DeclaringClass)
			if err != nil {
				return 0, err
			}
			receiver = inst
			receiverInst = inst
		}

		argWords := raw
		if len(raw) > 0 {
			argWords = raw[1:]
		}
		args := make([]any, len(m.ArgTypes))
		for i, a := range m.ArgTypes {
			if i >= len(argWords) {
				break
			}
			v, err := a.FromJni(argWords[i], d.env, d.host, receiverInst)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}

		result, err := fn(receiver, args)
		if err != nil {
			if je, ok := err.(*jerr.Error); ok && je.Kind == jerr.JavaException {
				d.env.Throw(jnienv.Ref(je.Throwable))
				return 0, nil
			}
			return 0, err
		}
		if m.ReturnType == nil || m.ReturnType.ToJni == nil {
			return 0, nil
		}
		return m.ReturnType.ToJni(result, d.env, d.host, d.Receiver)
	}
}
