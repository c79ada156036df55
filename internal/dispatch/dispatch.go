// Package dispatch implements Component D, the Invocation Dispatcher:
// given a member name and actual arguments, choose the unique overload
// whose arity and type compatibility match, marshal, invoke, and
// unmarshal the result (spec §4.D).
package dispatch

import (
	"fmt"

	"github.com/halvard/jbridge/internal/hook"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/typeadapter"
)

// Mode selects which JNI invocation family a Dispatcher's Call uses.
type Mode int

const (
	ModeMethod Mode = iota
	ModeNewConstructor
	ModeInitConstructor
)

// Dispatcher is the callable, per-name surface §4.D describes: `use("X").foo`
// for a method/field named foo, or `use("X").$new`/`$init` for the two
// constructor views.
type Dispatcher struct {
	Name  string
	Mode  Mode
	Group *member.OverloadGroup

	env      jnienv.Env
	registry *typeadapter.Registry
	host     typeadapter.InstanceHost
	hooks    *hook.Engine // nil when no Api is attached (hooking unavailable)

	// Receiver is 0 for a static-only or class-level view; ClassRef is
	// always the runtime class of the dispatch target, needed for
	// static calls, nonvirtual instance calls, and NewObjectA.
	// ReceiverInstance is the already-wrapped Instance behind Receiver,
	// when the caller had one on hand (nil otherwise); it lets a
	// returned handle that equals Receiver resolve back to that same
	// Instance instead of minting a fresh one (spec §4.A).
	Receiver         jnienv.Ref
	ReceiverInstance typeadapter.Instance
	ClassRef         jnienv.Ref
	DeclaringClass   string
	ClassOnly        bool // true when invoked through a ClassWrapper with no backing instance
}

// New builds a Dispatcher bound to one member name on one class/instance.
func New(name string, mode Mode, group *member.OverloadGroup, env jnienv.Env, registry *typeadapter.Registry, host typeadapter.InstanceHost, hooks *hook.Engine, receiver jnienv.Ref, receiverInstance typeadapter.Instance, classRef jnienv.Ref, declaringClass string, classOnly bool) *Dispatcher {
	return &Dispatcher{
		Name: name, Mode: mode, Group: group,
		env: env, registry: registry, host: host, hooks: hooks,
		Receiver: receiver, ReceiverInstance: receiverInstance, ClassRef: classRef, DeclaringClass: declaringClass, ClassOnly: classOnly,
	}
}

// Overloads returns every Method descriptor for this name, in arity
// then declaration order.
func (d *Dispatcher) Overloads() []*member.Method {
	var out []*member.Method
	for arity := 0; arity <= maxArity(d.Group); arity++ {
		out = append(out, d.Group.ByArity[arity]...)
	}
	return out
}

func maxArity(g *member.OverloadGroup) int {
	max := 0
	for arity := range g.ByArity {
		if arity > max {
			max = arity
		}
	}
	return max
}

// single returns this dispatcher's lone overload, failing with
// AmbiguousOverload when more than one exists (spec §4.D: ".implementation
// ... on multi-overload groups, access ... is a hard error").
func (d *Dispatcher) single() (*member.Method, error) {
	all := d.Overloads()
	if len(all) != 1 {
		return nil, jerr.New(jerr.AmbiguousOverload, "%s has %d overloads; call .overload(...) first", d.Name, len(all))
	}
	return all[0], nil
}

// Overload selects exactly one Method by its declared parameter type
// names, in order.
func (d *Dispatcher) Overload(argTypeNames ...string) (*member.Method, error) {
	for _, m := range d.Group.ByArity[len(argTypeNames)] {
		if signatureMatches(m, argTypeNames) {
			return m, nil
		}
	}
	return nil, jerr.New(jerr.NoSuchOverload, "%s has no overload matching (%v)", d.Name, argTypeNames)
}

func signatureMatches(m *member.Method, names []string) bool {
	if len(m.ArgTypes) != len(names) {
		return false
	}
	for i, n := range names {
		if m.ArgTypes[i].ClassName != n {
			return false
		}
	}
	return true
}

// Holder returns the instance this dispatcher is bound to, or nil for
// a static/class-level view.
func (d *Dispatcher) Holder() (typeadapter.Instance, error) {
	if d.Receiver == 0 {
		return nil, nil
	}
	return d.host.Cast(d.Receiver, d.DeclaringClass)
}

// Kind returns the member kind of this dispatcher's lone overload.
func (d *Dispatcher) Kind() (member.MethodKind, error) {
	m, err := d.single()
	if err != nil {
		return 0, err
	}
	return m.Kind, nil
}

// ReturnType returns the declared return type name of this
// dispatcher's lone overload.
func (d *Dispatcher) ReturnType() (string, error) {
	m, err := d.single()
	if err != nil {
		return "", err
	}
	return m.ReturnType.ClassName, nil
}

// ArgumentTypes returns the declared parameter type names of this
// dispatcher's lone overload.
func (d *Dispatcher) ArgumentTypes() ([]string, error) {
	m, err := d.single()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(m.ArgTypes))
	for i, a := range m.ArgTypes {
		names[i] = a.ClassName
	}
	return names, nil
}

// Handle returns the opaque JNI method id of this dispatcher's lone
// overload.
func (d *Dispatcher) Handle() (uint64, error) {
	m, err := d.single()
	if err != nil {
		return 0, err
	}
	return uint64(m.ID), nil
}

// CanInvokeWith reports whether some overload's arity and positional
// compatibility predicates accept args, without performing the call.
func (d *Dispatcher) CanInvokeWith(args []any) bool {
	_, _, err := d.selectOverload(args)
	return err == nil
}

// Call selects the unique compatible overload for args, marshals,
// invokes, and returns the unmarshaled result.
func (d *Dispatcher) Call(args []any) (any, error) {
	if d.ClassOnly && d.Mode == ModeMethod {
		if first := d.firstKind(); first == member.InstanceMethod {
			if d.Name == "toString" {
				return fmt.Sprintf("<%s>", d.DeclaringClass), nil
			}
			return nil, jerr.New(jerr.NoSuchMember, "%s is an instance method; call it on an instance, not the class", d.Name)
		}
	}

	m, wordArgs, err := d.marshalCall(args)
	if err != nil {
		return nil, err
	}

	// The synthetic zero-arg valueOf overload (applyValueOfRule) has no
	// backing JNI method - its ID/DeclClass are deliberately zero - so
	// invoking it must short-circuit to returning the receiver itself
	// rather than reach CallMethodA with a bogus method id.
	if m.Synthetic {
		return d.ReceiverInstance, nil
	}

	capacity := 2
	for _, a := range m.ArgTypes {
		if a.AllocatesLocal {
			capacity++
		}
	}
	retAllocates := d.Mode == ModeNewConstructor || (m.ReturnType != nil && m.ReturnType.AllocatesLocal)
	if retAllocates {
		capacity++
	}
	if err := d.env.PushLocalFrame(capacity); err != nil {
		return nil, jerr.New(jerr.OutOfMemory, "push local frame for %s: %v", d.Name, err)
	}

	resultRef, retWord, callErr := d.invoke(m, wordArgs)
	if callErr != nil {
		d.env.PopLocalFrame(0)
		return nil, callErr
	}
	if d.env.ExceptionCheck() {
		throwable := d.env.ExceptionOccurred()
		d.env.ExceptionClear()
		d.env.PopLocalFrame(0)
		return nil, jerr.NewJavaException(uint64(throwable), "%s raised a pending exception", d.Name)
	}

	if d.Mode == ModeNewConstructor {
		kept := d.env.PopLocalFrame(resultRef)
		return d.host.Cast(kept, d.DeclaringClass)
	}
	if d.Mode == ModeInitConstructor {
		d.env.PopLocalFrame(0)
		return nil, nil
	}

	if m.ReturnType == nil || m.ReturnType.FromJni == nil {
		d.env.PopLocalFrame(0)
		return nil, nil
	}
	if !m.ReturnType.AllocatesLocal {
		d.env.PopLocalFrame(0)
		return m.ReturnType.FromJni(retWord, d.env, d.host, d.ReceiverInstance)
	}
	kept := d.env.PopLocalFrame(jnienv.Ref(retWord))
	return m.ReturnType.FromJni(uint64(kept), d.env, d.host, d.ReceiverInstance)
}

func (d *Dispatcher) firstKind() member.MethodKind {
	all := d.Overloads()
	if len(all) == 0 {
		return member.InstanceMethod
	}
	return all[0].Kind
}

func (d *Dispatcher) invoke(m *member.Method, wordArgs []uint64) (jnienv.Ref, uint64, error) {
	switch d.Mode {
	case ModeNewConstructor:
		ref, err := d.env.NewObjectA(d.ClassRef, m.ID, wordArgs)
		return ref, uint64(ref), err
	case ModeInitConstructor:
		_, err := d.env.CallMethodA("void", true, d.Receiver, m.DeclClass, m.ID, wordArgs)
		return 0, 0, err
	default:
		if m.Kind == member.StaticMethod {
			w, err := d.env.CallStaticMethodA(m.ReturnType.ClassName, d.ClassRef, m.ID, wordArgs)
			return 0, w, err
		}
		id := m.ID
		direct := d.hooks != nil && m.IsReentrant(d.hooks.CurrentThreadID())
		if direct {
			id = d.hooks.DirectTarget(m)
		}
		w, err := d.env.CallMethodA(m.ReturnType.ClassName, direct, d.Receiver, m.DeclClass, id, wordArgs)
		return 0, w, err
	}
}
