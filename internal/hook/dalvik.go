package hook

import (
	"sync"

	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/vmapi"
)

// Dalvik's Method struct layout (from dalvik/vm/oo/Object.h in the
// libdvm.so this bridge attaches to). Only the fields a replacement
// install/overlay touches are modeled; everything else in the struct is
// left untouched.
const (
	dalvikAccessFlagsOffset   = 20 // u4 accessFlags
	dalvikMethodIndexOffset   = 24 // u2 methodIndex - this method's slot in its declaring class's vtable
	dalvikRegistersSizeOffset = 26 // u2 registersSize
	dalvikInsSizeOffset       = 28 // u2 insSize
	dalvikOutsSizeOffset      = 30 // u2 outsSize
	dalvikJniArgInfoOffset    = 36 // u4 jniArgInfo
	dalvikNativeFuncOffset    = 48 // DalvikBridgeFunc nativeFunc

	dalvikMethodStructSize = 56
)

// dalvikJniArgInfo flags the method as taking no special fast-path
// shorty; §4.E step 3 sets this unconditionally on install.
const dalvikJniArgInfo uint32 = 0x80000000

const dalvikAccNative uint32 = 0x0100

// Dalvik's ClassObject vtable fields (also dalvik/vm/oo/Object.h):
// a pointer to the vtable array, and the number of populated entries.
const (
	dalvikClassVtableOffset      = 112 // Method **vtable
	dalvikClassVtableCountOffset = 120 // size_t vtableCount
)

// dalvikOverlayEntry remembers one class's original vtable pointer/count
// so Uninstall can restore it (spec §4.E: "restore every shadow-vtable
// patch for that method").
type dalvikOverlayEntry struct {
	classPtr    uint64
	vtablePtr   uint64
	vtableCount uint32
}

// dalvikSnapshot is the hook-state §4.E keeps per hooked method:
// dalvikOriginalMethod (the pristine 56 bytes, restored verbatim on
// uninstall) and dalvikTargetMethodId (a private in-process clone of
// that same struct, whose address is what gets appended to a shadow
// vtable so re-entrant virtual dispatch reaches the original body
// instead of recursing into the replacement).
type dalvikSnapshot struct {
	original   []byte
	targetAddr uint64

	mu       sync.Mutex
	overlays map[uint64]*dalvikOverlayEntry // keyed by declaring-class struct address
}

// dalvikStrategy overlays a method's dispatch the way the teacher's
// emulator package walks an Itanium C++ ABI vtable to resolve a call
// target, repurposed: instead of reading a vtable slot to resolve an
// existing call, it clones a class's vtable into a shadow buffer and
// appends a new slot pointing at the unhooked method clone, the same
// "resolve by vtable slot" shape turned into a write path.
type dalvikStrategy struct{}

func (dalvikStrategy) snapshot(api vmapi.Api, m *member.Method) (any, error) {
	addr := uint64(m.ID)
	raw, err := api.ReadMemory(addr, dalvikMethodStructSize)
	if err != nil {
		return nil, err
	}
	original := make([]byte, len(raw))
	copy(original, raw)

	targetAddr, err := api.AllocScratch(dalvikMethodStructSize)
	if err != nil {
		return nil, err
	}
	if err := api.WriteMemory(targetAddr, original); err != nil {
		return nil, err
	}

	return &dalvikSnapshot{
		original:   original,
		targetAddr: targetAddr,
		overlays:   make(map[uint64]*dalvikOverlayEntry),
	}, nil
}

// dalvikArgWordSize computes registersSize/insSize per §4.E step 3:
// sum(argSizes) + 1 for the receiver on an instance method.
func dalvikArgWordSize(m *member.Method) uint16 {
	var n uint16
	if m.Kind != member.StaticMethod {
		n++
	}
	for _, a := range m.ArgTypes {
		n += uint16(a.WordSize)
	}
	return n
}

func (dalvikStrategy) patch(api vmapi.Api, m *member.Method, trampolineAddr uint64) error {
	addr := uint64(m.ID)

	flags, err := readU32(api, addr+dalvikAccessFlagsOffset)
	if err != nil {
		return err
	}
	if err := writeU32(api, addr+dalvikAccessFlagsOffset, flags|dalvikAccNative); err != nil {
		return err
	}

	size := dalvikArgWordSize(m)
	if err := writeU16(api, addr+dalvikRegistersSizeOffset, size); err != nil {
		return err
	}
	if err := writeU16(api, addr+dalvikInsSizeOffset, size); err != nil {
		return err
	}
	if err := writeU16(api, addr+dalvikOutsSizeOffset, 0); err != nil {
		return err
	}
	if err := writeU32(api, addr+dalvikJniArgInfoOffset, dalvikJniArgInfo); err != nil {
		return err
	}
	if err := writeU64(api, addr+dalvikNativeFuncOffset, trampolineAddr); err != nil {
		return err
	}

	return api.UseJNIBridge(addr)
}

func (dalvikStrategy) restore(api vmapi.Api, m *member.Method, snap any) error {
	ds, ok := snap.(*dalvikSnapshot)
	if !ok || ds == nil {
		return nil
	}
	addr := uint64(m.ID)
	if err := api.WriteMemory(addr, ds.original); err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, ov := range ds.overlays {
		if err := writeU64(api, ov.classPtr+dalvikClassVtableOffset, ov.vtablePtr); err != nil {
			return err
		}
		if err := writeU32(api, ov.classPtr+dalvikClassVtableCountOffset, ov.vtableCount); err != nil {
			return err
		}
	}
	ds.overlays = make(map[uint64]*dalvikOverlayEntry)
	return nil
}

// prepareCall implements §4.E step 4: on the first call through the
// replaced method for a given receiver's runtime class, clone that
// class's vtable into a shadow buffer of double size, append
// dalvikTargetMethodId, patch the method's own methodIndex to the new
// slot, and point the class at the shadow vtable. Later calls for the
// same class are no-ops; calls for a different class (a subclass
// sharing the hooked method via inheritance) get their own overlay.
func (dalvikStrategy) prepareCall(env jnienv.Env, api vmapi.Api, m *member.Method, args []uint64) error {
	if m.Kind == member.StaticMethod || len(args) == 0 {
		return nil
	}
	ds, ok := m.HookState().(*dalvikSnapshot)
	if !ok || ds == nil {
		return nil
	}

	classRef := env.GetObjectClass(jnienv.Ref(args[0]))
	if classRef == 0 {
		return nil
	}
	classPtr := api.DecodeIndirectRef(uint64(classRef))

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if _, done := ds.overlays[classPtr]; done {
		return nil
	}

	vtablePtr, err := readU64(api, classPtr+dalvikClassVtableOffset)
	if err != nil {
		return err
	}
	count, err := readU32(api, classPtr+dalvikClassVtableCountOffset)
	if err != nil {
		return err
	}

	raw, err := api.ReadMemory(vtablePtr, int(count)*8)
	if err != nil {
		return err
	}

	shadowSlots := (count + 1) * 2
	shadowPtr, err := api.AllocScratch(int(shadowSlots) * 8)
	if err != nil {
		return err
	}
	if err := api.WriteMemory(shadowPtr, raw); err != nil {
		return err
	}
	if err := writeU64(api, shadowPtr+uint64(count)*8, ds.targetAddr); err != nil {
		return err
	}

	if err := writeU16(api, uint64(m.ID)+dalvikMethodIndexOffset, uint16(count)); err != nil {
		return err
	}
	if err := writeU64(api, classPtr+dalvikClassVtableOffset, shadowPtr); err != nil {
		return err
	}
	if err := writeU32(api, classPtr+dalvikClassVtableCountOffset, count+1); err != nil {
		return err
	}

	ds.overlays[classPtr] = &dalvikOverlayEntry{classPtr: classPtr, vtablePtr: vtablePtr, vtableCount: count}
	return nil
}

// directTarget returns dalvikTargetMethodId's clone address when m is
// hooked: the live struct at m.ID stays ACC_NATIVE-flagged with
// nativeFunc pointing at the trampoline even under nonvirtual dispatch,
// so reentry must bypass it entirely and call the unhooked clone (§5:
// "For Dalvik the equivalent is served by dalvikTargetMethodId living
// in the shadow vtable slot").
func (dalvikStrategy) directTarget(m *member.Method) jnienv.MethodID {
	if ds, ok := m.HookState().(*dalvikSnapshot); ok && ds != nil {
		return jnienv.MethodID(ds.targetAddr)
	}
	return m.ID
}
