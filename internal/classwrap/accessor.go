package classwrap

import (
	"github.com/halvard/jbridge/internal/dispatch"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
)

// Accessor is the merged field/method view spec §4.C describes: a
// member named "x" that is both a field and a method surfaces both
// .value access and call semantics under one property.
type Accessor struct {
	dispatcher *dispatch.Dispatcher

	field      *member.Field
	fieldOwner *ClassWrapper
	receiver   jnienv.Ref
	cache      *Cache
}

// CanCall reports whether this accessor has a callable method view.
func (a *Accessor) CanCall() bool { return a.dispatcher != nil }

// HasField reports whether this accessor has a field view.
func (a *Accessor) HasField() bool { return a.field != nil }

// Call invokes the method view, failing if this member has none.
func (a *Accessor) Call(args []any) (any, error) {
	if a.dispatcher == nil {
		return nil, jerr.New(jerr.NoSuchMember, "member has no callable method form")
	}
	return a.dispatcher.Call(args)
}

// Get reads the field view, failing if this member has none.
func (a *Accessor) Get() (any, error) {
	if a.field == nil {
		return nil, jerr.New(jerr.NoSuchMember, "member has no field form")
	}
	return a.cache.GetField(a.field, a.receiver)
}

// Set writes the field view, failing if this member has none.
func (a *Accessor) Set(v any) error {
	if a.field == nil {
		return jerr.New(jerr.NoSuchMember, "member has no field form")
	}
	return a.cache.SetField(a.field, a.receiver, v)
}
