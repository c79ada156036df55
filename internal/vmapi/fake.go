package vmapi

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Fake is an in-memory Api sufficient to drive the Hooking Engine and
// Heap Enumerator in tests: a flat byte-addressed memory arena plus a
// registry of installed trampolines, standing in for a live Dalvik/ART
// process.
type Fake struct {
	mu sync.Mutex

	flavor Flavor
	mem    map[uint64][]byte // page-granular sparse store, keyed by 4KiB page base
	heap   map[uint64]bool   // "live" heap object addresses, for IsValidObject/scanning

	heapBase, heapLimit uint64

	trampolines map[uint64]TrampolineFunc
	nextTramp   uint64
	nextScratch uint64

	runtimeInstance uint64
	quickTrampoline uint64
	interpBridge    uint64
	threadFromGdb   uint64

	specs map[string]*OffsetSpec
	spec  *OffsetSpec

	addLocalRefSym uint64 // 0 until "resolved"

	// CurrentThread simulates the calling native thread id; tests flip
	// it to model concurrent callers.
	CurrentThread uint64

	// DecodeRef, when set, simulates dvmDecodeIndirectRef's translation
	// from an indirect-reference-table slot to the raw object pointer a
	// heap scan actually sees. Tests leave it nil (identity) unless they
	// need to prove a caller decodes rather than compares the raw ref.
	DecodeRef func(ref uint64) uint64
}

const pageSize = 4096
const fakeHeapBase = 0x60000000
const fakeHeapLimit = 0x60100000
const fakeTrampolineBase = 0x70000000
const fakeScratchBase = 0x80000000

// NewFake creates a Fake Api for the given flavor, pre-seeded with the
// default offset-spec matrix.
func NewFake(flavor Flavor) *Fake {
	specs, _ := LoadOffsetSpecs([]byte(DefaultOffsetSpecsYAML))
	f := &Fake{
		flavor:          flavor,
		mem:             make(map[uint64][]byte),
		heap:            make(map[uint64]bool),
		heapBase:        fakeHeapBase,
		heapLimit:       fakeHeapLimit,
		trampolines:     make(map[uint64]TrampolineFunc),
		nextTramp:       fakeTrampolineBase,
		nextScratch:     fakeScratchBase,
		runtimeInstance: 0x50000000,
		quickTrampoline: 0x50001000,
		interpBridge:    0x50002000,
		threadFromGdb:   0x50003000,
		specs:           specs,
		CurrentThread:   1,
	}
	f.spec = specs["art-10"]
	return f
}

// SetOffsetSpecVersion selects which loaded spec OffsetSpec() returns.
func (f *Fake) SetOffsetSpecVersion(version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.specs[version]
	if !ok {
		return ErrVmSpecMissing
	}
	f.spec = s
	return nil
}

func (f *Fake) Flavor() Flavor { return f.flavor }

func (f *Fake) page(addr uint64) ([]byte, uint64) {
	base := addr &^ (pageSize - 1)
	buf, ok := f.mem[base]
	if !ok {
		buf = make([]byte, pageSize)
		f.mem[base] = buf
	}
	return buf, addr - base
}

func (f *Fake) ReadMemory(addr uint64, size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, size)
	for i := 0; i < size; {
		buf, off := f.page(addr + uint64(i))
		n := copy(out[i:], buf[off:])
		if n == 0 {
			n = 1
		}
		i += n
	}
	return out, nil
}

func (f *Fake) WriteMemory(addr uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < len(data); {
		buf, off := f.page(addr + uint64(i))
		n := copy(buf[off:], data[i:])
		if n == 0 {
			n = 1
		}
		i += n
	}
	return nil
}

func (f *Fake) readU64(addr uint64) uint64 {
	b, _ := f.ReadMemory(addr, 8)
	return binary.LittleEndian.Uint64(b)
}

func (f *Fake) writeU64(addr, v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	_ = f.WriteMemory(addr, b)
}

func (f *Fake) DecodeIndirectRef(ref uint64) uint64 {
	if f.DecodeRef != nil {
		return f.DecodeRef(ref)
	}
	return ref
}

func (f *Fake) HeapSourceBase() uint64  { return f.heapBase }
func (f *Fake) HeapSourceLimit() uint64 { return f.heapLimit }

func (f *Fake) IsValidObject(addr uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap[addr]
}

// PlaceHeapObject marks addr as a live heap object matching classPtr,
// writing classPtr at addr+0 (the object header's class-pointer slot,
// matching Dalvik's object layout) so a byte-pattern scan will find it.
func (f *Fake) PlaceHeapObject(addr, classPtr uint64) {
	f.mu.Lock()
	f.heap[addr] = true
	f.mu.Unlock()
	f.writeU64(addr, classPtr)
}

func (f *Fake) UseJNIBridge(methodAddr uint64) error { return nil }

func (f *Fake) AddLocalReference(obj uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addLocalRefSym == 0 {
		// First use: simulate the lazy byte-signature scan of libdvm.so.
		f.addLocalRefSym = 0x40000000
	}
	return obj, nil
}

func (f *Fake) RuntimeInstance() (uint64, error) { return f.runtimeInstance, nil }

func (f *Fake) OffsetSpec() (*OffsetSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spec == nil {
		return nil, ErrVmSpecMissing
	}
	return f.spec, nil
}

func (f *Fake) QuickGenericJniTrampoline() (uint64, error) { return f.quickTrampoline, nil }
func (f *Fake) InterpreterToCompiledCodeBridge() (uint64, error) {
	return f.interpBridge, nil
}
func (f *Fake) ThreadCurrentFromGdb() (uint64, error) { return f.threadFromGdb, nil }

func (f *Fake) BuildTrampoline(fn TrampolineFunc) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr := f.nextTramp
	f.nextTramp += 16
	f.trampolines[addr] = fn
	return addr, nil
}

// AllocScratch reserves size bytes out of a dedicated address band, zero
// filled, 8-byte aligned.
func (f *Fake) AllocScratch(size int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr := f.nextScratch
	aligned := (uint64(size) + 7) &^ 7
	if aligned == 0 {
		aligned = 8
	}
	f.nextScratch += aligned
	return addr, nil
}

// InvokeTrampoline calls the trampoline installed at addr, for tests
// that simulate the VM calling back into a replaced method.
func (f *Fake) InvokeTrampoline(addr uint64, args []uint64) (uint64, error) {
	f.mu.Lock()
	fn, ok := f.trampolines[addr]
	f.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("no trampoline installed at 0x%x", addr)
	}
	return fn(args)
}

func (f *Fake) CurrentThreadID() uint64 { return f.CurrentThread }
