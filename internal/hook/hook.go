// Package hook implements Component E, the Hooking Engine: replacing a
// resolved method's implementation at runtime (spec §4.E, §5). Two
// strategies exist because Dalvik and ART store a method's entry point
// differently: Dalvik flags the Method struct native and overlays the
// vtable of each receiver class seen at call time (in the spirit of the Itanium C++ ABI vtable walk the teacher's emulator
// package performs for native calls); ART patches the ArtMethod record
// directly, the same technique the wider Frida-on-Android ecosystem
// uses.
//
// A jmethodID is itself the address of the Method/ArtMethod record on
// both runtimes, so member.Method.ID doubles as the patch target - no
// separate symbol resolution step is needed here.
package hook

import (
	"encoding/binary"

	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/vmapi"
)

// Implementation is a replacement method body. args follows JNI calling
// convention: args[0] is the receiver (or class, for a static method),
// the rest are the method's declared parameters as raw JNI words.
type Implementation func(args []uint64) (uint64, error)

// Engine installs and removes Implementations on resolved Methods,
// selecting the Dalvik or ART strategy from the attached Api's flavor.
type Engine struct {
	env jnienv.Env
	api vmapi.Api

	strategy strategy
}

// New creates an Engine bound to one attached process.
func New(env jnienv.Env, api vmapi.Api) *Engine {
	var s strategy
	if api.Flavor() == vmapi.Art {
		s = artStrategy{}
	} else {
		s = dalvikStrategy{}
	}
	return &Engine{env: env, api: api, strategy: s}
}

type strategy interface {
	snapshot(api vmapi.Api, m *member.Method) (any, error)
	patch(api vmapi.Api, m *member.Method, trampolineAddr uint64) error
	restore(api vmapi.Api, m *member.Method, snapshot any) error
	// prepareCall runs ahead of every invocation of a hooked method's
	// replacement, for strategies that need call-time bookkeeping before
	// the trampoline runs (the Dalvik per-instance-class vtable overlay,
	// built lazily on first call for each class, §4.E step 4). A no-op
	// for ART, whose ArtMethod patch needs nothing further per call.
	prepareCall(env jnienv.Env, api vmapi.Api, m *member.Method, args []uint64) error
	// directTarget returns the method id a reentrant/nonvirtual call
	// from inside m's own replacement should target (§5). ART's
	// nonvirtual JNI path already reaches the original through m.ID
	// unchanged; Dalvik's live Method struct stays native-patched even
	// under nonvirtual dispatch, so reentry must target
	// dalvikTargetMethodId, the unhooked clone, instead.
	directTarget(m *member.Method) jnienv.MethodID
}

// DirectTarget returns the method id package dispatch should invoke on
// the nonvirtual/direct path when m is currently reentrant (§5).
func (e *Engine) DirectTarget(m *member.Method) jnienv.MethodID {
	return e.strategy.directTarget(m)
}

// Install replaces m's implementation with impl. Calling Install again
// on an already-hooked method swaps the replacement without disturbing
// the original snapshot, so Uninstall always restores the pristine
// method (spec §4.E: "install/uninstall is idempotent").
//
// $new constructors and method names with more than one overload are
// rejected by the caller (package dispatch) before
// Install is ever reached; this package assumes m already identifies
// exactly one concrete method.
func (e *Engine) Install(m *member.Method, impl Implementation) error {
	if m.HookState() == nil {
		snap, err := e.strategy.snapshot(e.api, m)
		if err != nil {
			return jerr.New(jerr.TrampolineNotFound, "snapshot %s: %v", m.Name, err)
		}
		m.SetHookState(snap)
	}

	wrapped := e.wrapReentrant(m, impl)
	addr, err := e.api.BuildTrampoline(wrapped)
	if err != nil {
		return jerr.New(jerr.TrampolineNotFound, "build trampoline for %s: %v", m.Name, err)
	}
	if err := e.strategy.patch(e.api, m, addr); err != nil {
		return jerr.New(jerr.TrampolineNotFound, "patch %s: %v", m.Name, err)
	}
	m.SetReplacement(impl)
	return nil
}

// CurrentThreadID returns the native thread id of the calling thread,
// used by package dispatch to decide between the virtual and
// nonvirtual invocation path (spec §5).
func (e *Engine) CurrentThreadID() uint64 {
	return e.api.CurrentThreadID()
}

// Uninstall restores m's original implementation. A no-op when m is
// not currently hooked.
func (e *Engine) Uninstall(m *member.Method) error {
	if !m.IsHooked() {
		return nil
	}
	if err := e.strategy.restore(e.api, m, m.HookState()); err != nil {
		return jerr.New(jerr.TrampolineNotFound, "restore %s: %v", m.Name, err)
	}
	m.SetReplacement(nil)
	m.SetHookState(nil)
	return nil
}

// wrapReentrant marks the calling thread as "inside the replacement"
// for the duration of impl, so an invocation issued from within impl
// itself (spec §5: calling the original from inside a replacement)
// routes to the nonvirtual/direct path instead of recursing back into
// this same trampoline.
func (e *Engine) wrapReentrant(m *member.Method, impl Implementation) vmapi.TrampolineFunc {
	return func(args []uint64) (uint64, error) {
		if err := e.strategy.prepareCall(e.env, e.api, m, args); err != nil {
			return 0, jerr.New(jerr.TrampolineNotFound, "prepare call for %s: %v", m.Name, err)
		}
		tid := e.api.CurrentThreadID()
		m.MarkEntering(tid)
		defer m.MarkExiting(tid)
		return impl(args)
	}
}

func readU64(api vmapi.Api, addr uint64) (uint64, error) {
	b, err := api.ReadMemory(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func writeU64(api vmapi.Api, addr, v uint64) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return api.WriteMemory(addr, b)
}

func readU32(api vmapi.Api, addr uint64) (uint32, error) {
	b, err := api.ReadMemory(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func writeU32(api vmapi.Api, addr uint64, v uint32) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return api.WriteMemory(addr, b)
}

func readU16(api vmapi.Api, addr uint64) (uint16, error) {
	b, err := api.ReadMemory(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func writeU16(api vmapi.Api, addr uint64, v uint16) error {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return api.WriteMemory(addr, b)
}
