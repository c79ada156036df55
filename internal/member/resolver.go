package member

import (
	"fmt"

	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/typeadapter"
)

const valueOfName = "valueOf"

// Resolve builds a Table for classRef by reflectively enumerating its
// declared methods, fields, and constructors (spec §4.C). Inherited
// members are not included here: ClassWrapper looks a name up in this
// Table first and then in each superclass's Table in turn, taking the
// first class that declares it; same-named overloads declared by a
// superclass are not merged in (spec §3).
func Resolve(env jnienv.Env, registry *typeadapter.Registry, classRef jnienv.Ref) (*Table, error) {
	methods, err := env.GetDeclaredMethods(classRef)
	if err != nil {
		return nil, jerr.New(jerr.ReflectionFailed, "enumerate methods: %v", err)
	}
	fields, err := env.GetDeclaredFields(classRef)
	if err != nil {
		return nil, jerr.New(jerr.ReflectionFailed, "enumerate fields: %v", err)
	}
	ctors, err := env.GetDeclaredConstructors(classRef)
	if err != nil {
		return nil, jerr.New(jerr.ReflectionFailed, "enumerate constructors: %v", err)
	}

	t := &Table{
		Methods:   make(map[string]*OverloadGroup),
		NewCtors:  newOverloadGroup("$new"),
		InitCtors: newOverloadGroup("$init"),
		Fields:    make(map[string]*Field),
	}

	for _, rm := range methods {
		m, err := buildMethod(registry, classRef, rm)
		if err != nil {
			return nil, err
		}
		group, ok := t.Methods[m.Name]
		if !ok {
			group = newOverloadGroup(m.Name)
			t.Methods[m.Name] = group
		}
		group.Add(m)
	}

	if err := applyValueOfRule(registry, t); err != nil {
		return nil, err
	}

	for _, rf := range fields {
		f, err := buildField(registry, classRef, rf)
		if err != nil {
			return nil, err
		}
		t.Fields[f.Name] = f
	}

	for _, rc := range ctors {
		argTypes, err := resolveArgTypes(registry, rc.ParamTypes, rc.IsVarArgs)
		if err != nil {
			return nil, err
		}
		base := &Method{
			Name:      "<init>",
			Kind:      Constructor,
			ID:        rc.ID,
			DeclClass: classRef,
			ArgTypes:  argTypes,
			IsVarArgs: rc.IsVarArgs,
		}
		newCtor := *base
		t.NewCtors.Add(&newCtor)
		initCtor := *base
		t.InitCtors.Add(&initCtor)
	}

	return t, nil
}

func buildMethod(registry *typeadapter.Registry, classRef jnienv.Ref, rm jnienv.ReflectedMethod) (*Method, error) {
	argTypes, err := resolveArgTypes(registry, rm.ParamTypes, rm.IsVarArgs)
	if err != nil {
		return nil, err
	}
	ret, err := registry.Lookup(rm.ReturnType)
	if err != nil {
		return nil, jerr.New(jerr.UnsupportedType, "method %s return type %s: %v", rm.Name, rm.ReturnType, err)
	}
	kind := InstanceMethod
	if rm.IsStatic {
		kind = StaticMethod
	}
	return &Method{
		Name:       rm.Name,
		Kind:       kind,
		ID:         rm.ID,
		DeclClass:  classRef,
		ReturnType: ret,
		ArgTypes:   argTypes,
		IsVarArgs:  rm.IsVarArgs,
	}, nil
}

func buildField(registry *typeadapter.Registry, classRef jnienv.Ref, rf jnienv.ReflectedField) (*Field, error) {
	typ, err := registry.Lookup(rf.Type)
	if err != nil {
		return nil, jerr.New(jerr.UnsupportedType, "field %s type %s: %v", rf.Name, rf.Type, err)
	}
	kind := InstanceField
	if rf.IsStatic {
		kind = StaticField
	}
	return &Field{
		Name:      rf.Name,
		Kind:      kind,
		ID:        rf.ID,
		DeclClass: classRef,
		Type:      typ,
	}, nil
}

// resolveArgTypes resolves each declared parameter type. When the
// member is varargs, the last parameter's reflected type already names
// the array form (e.g. "java.lang.String[]"), so no extra promotion is
// needed here - the Invocation Dispatcher performs collection-to-array
// promotion of trailing call-site arguments at call time (spec §4.D).
func resolveArgTypes(registry *typeadapter.Registry, paramTypes []string, isVarArgs bool) ([]*typeadapter.TypeAdapter, error) {
	out := make([]*typeadapter.TypeAdapter, len(paramTypes))
	for i, pt := range paramTypes {
		a, err := registry.Lookup(pt)
		if err != nil {
			return nil, jerr.New(jerr.UnsupportedType, "parameter %d type %s: %v", i, pt, err)
		}
		out[i] = a
	}
	return out, nil
}

// applyValueOfRule gives any "valueOf" group lacking a zero-argument
// instance overload a synthetic one that returns the receiver itself.
// Per spec this synthetic overload's declared return type is int.
func applyValueOfRule(registry *typeadapter.Registry, t *Table) error {
	group, ok := t.Methods[valueOfName]
	if !ok {
		return nil
	}
	for _, m := range group.ByArity[0] {
		if m.Kind == InstanceMethod {
			return nil // a zero-arg instance valueOf already exists
		}
	}
	intType, err := registry.Lookup("int")
	if err != nil {
		return fmt.Errorf("member: int adapter unavailable: %w", err)
	}
	synthetic := &Method{
		Name:       valueOfName,
		Kind:       InstanceMethod,
		ReturnType: intType,
		ArgTypes:   nil,
		Synthetic:  true,
	}
	group.Add(synthetic)
	return nil
}
