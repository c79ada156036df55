package hook

import (
	"testing"

	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/vmapi"
)

func TestArtInstallPatchesAndUninstallRestores(t *testing.T) {
	api := vmapi.NewFake(vmapi.Art)
	env := jnienv.NewFake()
	m := &member.Method{Name: "onTick", ID: jnienv.MethodID(0x90000000)}

	spec, err := api.OffsetSpec()
	if err != nil {
		t.Fatalf("OffsetSpec: %v", err)
	}
	origQuick := uint64(0xdead)
	addr := uint64(m.ID)
	if err := api.WriteMemory(addr+uint64(spec.ArtMethod.QuickCode), u64le(origQuick)); err != nil {
		t.Fatalf("seed quick code: %v", err)
	}

	e := New(env, api)

	var calledWithReentry bool
	impl := func(args []uint64) (uint64, error) {
		calledWithReentry = m.IsReentrant(api.CurrentThreadID())
		return 7, nil
	}

	if err := e.Install(m, impl); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !m.IsHooked() {
		t.Fatalf("expected method to report hooked after Install")
	}

	quickWord, err := readU64(api, addr+uint64(spec.ArtMethod.QuickCode))
	if err != nil {
		t.Fatalf("read quick code: %v", err)
	}
	if quickWord == origQuick {
		t.Fatalf("expected quick code to be patched away from original")
	}

	flags, err := readU32(api, addr+uint64(spec.ArtMethod.AccessFlags))
	if err != nil {
		t.Fatalf("read access flags: %v", err)
	}
	if flags&vmapi.AccFastNative == 0 {
		t.Fatalf("expected kAccFastNative to be set after install")
	}

	interpWord, err := readU64(api, addr+uint64(spec.ArtMethod.InterpreterCode))
	if err != nil {
		t.Fatalf("read interpreter code: %v", err)
	}
	wantInterp, err := api.InterpreterToCompiledCodeBridge()
	if err != nil {
		t.Fatalf("InterpreterToCompiledCodeBridge: %v", err)
	}
	if interpWord != wantInterp {
		t.Fatalf("expected interpreterCode patched to the interpreter-to-compiled-code bridge, got %#x want %#x", interpWord, wantInterp)
	}

	jniWord, err := readU64(api, addr+uint64(spec.ArtMethod.JniCode))
	if err != nil {
		t.Fatalf("read jni code: %v", err)
	}
	out, err := api.InvokeTrampoline(jniWord, []uint64{1, 2, 3})
	if err != nil {
		t.Fatalf("InvokeTrampoline: %v", err)
	}
	if out != 7 {
		t.Fatalf("expected trampoline to return 7, got %d", out)
	}
	if !calledWithReentry {
		t.Fatalf("expected method to be marked reentrant while the replacement body ran")
	}
	if m.IsReentrant(api.CurrentThreadID()) {
		t.Fatalf("expected reentry flag cleared after the call returned")
	}

	if err := e.Uninstall(m); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if m.IsHooked() {
		t.Fatalf("expected method to report unhooked after Uninstall")
	}
	restored, err := readU64(api, addr+uint64(spec.ArtMethod.QuickCode))
	if err != nil {
		t.Fatalf("read restored quick code: %v", err)
	}
	if restored != origQuick {
		t.Fatalf("expected quick code restored to %#x, got %#x", origQuick, restored)
	}

	if err := e.Uninstall(m); err != nil {
		t.Fatalf("second Uninstall should be a no-op, got: %v", err)
	}
}

func TestDalvikInstallPatchesAndUninstallRestores(t *testing.T) {
	api := vmapi.NewFake(vmapi.Dalvik)
	env := jnienv.NewFake()
	m := &member.Method{Name: "onTick", ID: jnienv.MethodID(0x91000000)}

	e := New(env, api)
	impl := func(args []uint64) (uint64, error) { return 42, nil }

	if err := e.Install(m, impl); err != nil {
		t.Fatalf("Install: %v", err)
	}

	addr := uint64(m.ID)
	flags, err := readU32(api, addr+dalvikAccessFlagsOffset)
	if err != nil {
		t.Fatalf("read access flags: %v", err)
	}
	if flags&dalvikAccNative == 0 {
		t.Fatalf("expected ACC_NATIVE set after install")
	}

	tramp, err := readU64(api, addr+dalvikNativeFuncOffset)
	if err != nil {
		t.Fatalf("read nativeFunc: %v", err)
	}
	out, err := api.InvokeTrampoline(tramp, nil)
	if err != nil {
		t.Fatalf("InvokeTrampoline: %v", err)
	}
	if out != 42 {
		t.Fatalf("expected 42, got %d", out)
	}

	if err := e.Uninstall(m); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	flags, err = readU32(api, addr+dalvikAccessFlagsOffset)
	if err != nil {
		t.Fatalf("read restored access flags: %v", err)
	}
	if flags&dalvikAccNative != 0 {
		t.Fatalf("expected ACC_NATIVE cleared after restore")
	}
}

func TestDalvikVtableOverlayOnCallAndUninstallRestores(t *testing.T) {
	api := vmapi.NewFake(vmapi.Dalvik)
	env := jnienv.NewFake()
	env.RegisterClass(&jnienv.FakeClass{Name: "com.example.Counter"})
	receiver := env.NewInstance("com.example.Counter")
	classPtr := uint64(env.GetObjectClass(receiver))

	origVtable, err := api.AllocScratch(3 * 8)
	if err != nil {
		t.Fatalf("AllocScratch: %v", err)
	}
	for i, fn := range []uint64{0xaaa1, 0xaaa2, 0xaaa3} {
		if err := writeU64(api, origVtable+uint64(i)*8, fn); err != nil {
			t.Fatalf("seed vtable slot %d: %v", i, err)
		}
	}
	if err := writeU64(api, classPtr+dalvikClassVtableOffset, origVtable); err != nil {
		t.Fatalf("seed class vtable ptr: %v", err)
	}
	if err := writeU32(api, classPtr+dalvikClassVtableCountOffset, 3); err != nil {
		t.Fatalf("seed class vtable count: %v", err)
	}

	m := &member.Method{Name: "bump", Kind: member.InstanceMethod, ID: jnienv.MethodID(0x92000000)}
	e := New(env, api)
	impl := func(args []uint64) (uint64, error) { return 1, nil }

	if err := e.Install(m, impl); err != nil {
		t.Fatalf("Install: %v", err)
	}

	addr := uint64(m.ID)
	tramp, err := readU64(api, addr+dalvikNativeFuncOffset)
	if err != nil {
		t.Fatalf("read nativeFunc: %v", err)
	}
	if _, err := api.InvokeTrampoline(tramp, []uint64{uint64(receiver)}); err != nil {
		t.Fatalf("InvokeTrampoline: %v", err)
	}

	newVtable, err := readU64(api, classPtr+dalvikClassVtableOffset)
	if err != nil {
		t.Fatalf("read shadow vtable ptr: %v", err)
	}
	if newVtable == origVtable {
		t.Fatalf("expected the class's vtable pointer to be redirected to a shadow buffer")
	}
	count, err := readU32(api, classPtr+dalvikClassVtableCountOffset)
	if err != nil {
		t.Fatalf("read shadow vtable count: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected shadow vtable count 4, got %d", count)
	}
	methodIndex, err := readU16(api, addr+dalvikMethodIndexOffset)
	if err != nil {
		t.Fatalf("read methodIndex: %v", err)
	}
	if methodIndex != 3 {
		t.Fatalf("expected methodIndex patched to the new slot 3, got %d", methodIndex)
	}
	ds, ok := m.HookState().(*dalvikSnapshot)
	if !ok {
		t.Fatalf("expected *dalvikSnapshot hook state")
	}
	appended, err := readU64(api, newVtable+3*8)
	if err != nil {
		t.Fatalf("read appended slot: %v", err)
	}
	if appended != ds.targetAddr {
		t.Fatalf("expected the appended slot to point at the unhooked method clone, got %#x want %#x", appended, ds.targetAddr)
	}

	// A second call for the same receiver's class must not rebuild the
	// overlay a second time.
	if _, err := api.InvokeTrampoline(tramp, []uint64{uint64(receiver)}); err != nil {
		t.Fatalf("InvokeTrampoline (second call): %v", err)
	}
	again, err := readU64(api, classPtr+dalvikClassVtableOffset)
	if err != nil {
		t.Fatalf("read vtable ptr after second call: %v", err)
	}
	if again != newVtable {
		t.Fatalf("expected the shadow vtable to be reused on a second call for the same class")
	}

	if err := e.Uninstall(m); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	restoredVtable, err := readU64(api, classPtr+dalvikClassVtableOffset)
	if err != nil {
		t.Fatalf("read restored vtable ptr: %v", err)
	}
	if restoredVtable != origVtable {
		t.Fatalf("expected Uninstall to restore the class's original vtable pointer")
	}
	restoredCount, err := readU32(api, classPtr+dalvikClassVtableCountOffset)
	if err != nil {
		t.Fatalf("read restored vtable count: %v", err)
	}
	if restoredCount != 3 {
		t.Fatalf("expected Uninstall to restore the original vtable count, got %d", restoredCount)
	}
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
