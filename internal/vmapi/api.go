// Package vmapi defines the VM entry-point resolver contract (the "Api"
// external collaborator of spec §6): the runtime flavor tag, Dalvik/ART
// symbol addresses, ABI offset tables, and raw process memory access.
// Version/ABI probing and the actual symbol resolver are out of scope
// per spec §1; this package only states what Components E and F need
// from them.
package vmapi

import "fmt"

// Flavor identifies which managed runtime the attached process uses.
type Flavor int

const (
	Dalvik Flavor = iota
	Art
)

func (f Flavor) String() string {
	if f == Art {
		return "art"
	}
	return "dalvik"
}

// ArtMethodOffsets locates the fields of an ArtMethod record that the
// Hooking Engine must read or overwrite.
type ArtMethodOffsets struct {
	JniCode         uint32 `yaml:"jni_code"`
	QuickCode       uint32 `yaml:"quick_code"`
	InterpreterCode uint32 `yaml:"interpreter_code"`
	AccessFlags     uint32 `yaml:"access_flags"`
}

// RuntimeOffsets locates fields of the ART Runtime singleton.
type RuntimeOffsets struct {
	ClassLinker uint32 `yaml:"class_linker"`
}

// ClassLinkerOffsets locates fields of the ART ClassLinker.
type ClassLinkerOffsets struct {
	QuickGenericJniTrampoline uint32 `yaml:"quick_generic_jni_trampoline"`
}

// OffsetSpec is the full ABI offset table for one ART version, loadable
// from YAML (the ambient configuration format for this repo).
type OffsetSpec struct {
	Version     string             `yaml:"version"`
	ArtMethod   ArtMethodOffsets   `yaml:"art_method"`
	Runtime     RuntimeOffsets     `yaml:"runtime"`
	ClassLinker ClassLinkerOffsets `yaml:"class_linker"`
}

// AccessFlags bits relevant to hook installation.
const (
	AccNative     uint32 = 0x0100
	AccFastNative uint32 = 0x00080000
)

// Api is the VM entry-point resolver contract required by §6.
type Api interface {
	Flavor() Flavor

	// Dalvik symbols
	DecodeIndirectRef(ref uint64) uint64
	HeapSourceBase() uint64
	HeapSourceLimit() uint64
	IsValidObject(addr uint64) bool
	UseJNIBridge(methodAddr uint64) error
	// AddLocalReference resolves dvmDecodeIndirectRef's inverse, lazily
	// scanning libdvm.so for the symbol on first use (§4.F). Returns
	// TrampolineNotFound if the symbol cannot be located.
	AddLocalReference(obj uint64) (uint64, error)

	// ART symbols and offsets
	RuntimeInstance() (uint64, error)
	OffsetSpec() (*OffsetSpec, error)
	QuickGenericJniTrampoline() (uint64, error)
	InterpreterToCompiledCodeBridge() (uint64, error)
	ThreadCurrentFromGdb() (uint64, error)

	// Raw process memory, shared by the Hooking Engine (method/vtable
	// patching) and the Heap Enumerator (heap scanning).
	ReadMemory(addr uint64, size int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error

	// BuildTrampoline synthesizes a JNI-calling-convention native
	// trampoline that invokes fn and returns its installed address.
	BuildTrampoline(fn TrampolineFunc) (uint64, error)

	// AllocScratch reserves size bytes of writable process memory the
	// caller can address and mutate directly, for bookkeeping structures
	// the Hooking Engine must place in the attached process itself
	// rather than in host memory (the Dalvik strategy's cloned Method
	// struct and shadow vtables, §4.E).
	AllocScratch(size int) (uint64, error)

	// CurrentThreadID returns the native thread id of the caller, used
	// to key the Hooking Engine's per-method pending-calls set (§5).
	CurrentThreadID() uint64
}

// TrampolineFunc is a host callback invoked when the VM calls into a
// hook-installed method. args[0] is this (or the class, for a static
// method), followed by the declared parameters as raw JNI words; the
// return value is a raw JNI word.
type TrampolineFunc func(args []uint64) (uint64, error)

// ErrVmSpecMissing reports an OffsetSpec unknown for the attached ART
// version.
var ErrVmSpecMissing = fmt.Errorf("vm spec missing: no offset table for this ART build")
