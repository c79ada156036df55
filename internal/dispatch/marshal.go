package dispatch

import (
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/typeadapter"
)

// selectOverload picks the Method matching args by the rule in spec
// §3/§4.D: exact arity bucket, first positionally-compatible member;
// failing that, a varargs overload whose fixed prefix accepts the
// leading arguments and whose trailing parameter accepts the rest
// packed into a slice (spec §8 "varargs promotion").
func (d *Dispatcher) selectOverload(args []any) (*member.Method, []any, error) {
	if exact, ok := d.Group.ByArity[len(args)]; ok {
		for _, m := range exact {
			if compatible(m, args) {
				return m, args, nil
			}
		}
	}

	for arity, ms := range d.Group.ByArity {
		if arity == 0 || arity > len(args) {
			continue
		}
		fixedCount := arity - 1
		for _, m := range ms {
			if !m.IsVarArgs {
				continue
			}
			fixed := args[:fixedCount]
			trailing := args[fixedCount:]
			if !compatiblePrefix(m.ArgTypes[:fixedCount], fixed) {
				continue
			}
			packed := make([]any, len(trailing))
			copy(packed, trailing)
			if !m.ArgTypes[fixedCount].IsCompatible(packed) {
				continue
			}
			promoted := make([]any, fixedCount, arity)
			copy(promoted, fixed)
			promoted = append(promoted, any(packed))
			return m, promoted, nil
		}
	}

	return nil, nil, jerr.New(jerr.NoSuchOverload, "%s has no overload accepting %d argument(s)", d.Name, len(args))
}

func compatible(m *member.Method, args []any) bool {
	return compatiblePrefix(m.ArgTypes, args)
}

func compatiblePrefix(types []*typeadapter.TypeAdapter, args []any) bool {
	if len(args) != len(types) {
		return false
	}
	for i, a := range types {
		if !a.IsCompatible(args[i]) {
			return false
		}
	}
	return true
}

// marshalCall selects an overload by the same arity and compatibility
// rule for every Mode and marshals the arguments through their
// TypeAdapters.
func (d *Dispatcher) marshalCall(args []any) (*member.Method, []uint64, error) {
	m, promoted, err := d.selectOverload(args)
	if err != nil {
		return nil, nil, err
	}
	words := make([]uint64, len(m.ArgTypes))
	for i, a := range m.ArgTypes {
		w, err := a.ToJni(promoted[i], d.env, d.host, d.Receiver)
		if err != nil {
			return nil, nil, jerr.New(jerr.IncompatibleArgument, "%s argument %d: %v", d.Name, i, err)
		}
		words[i] = w
	}
	return m, words, nil
}
