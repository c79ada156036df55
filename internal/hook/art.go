package hook

import (
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/member"
	"github.com/halvard/jbridge/internal/vmapi"
)

type artSnapshot struct {
	jniCode     uint64
	quickCode   uint64
	interpCode  uint64
	accessFlags uint32
}

// artStrategy patches the ArtMethod record's code pointers (spec §2:
// "jniCode/quickCode/interpreterCode") and sets kAccNative|kAccFastNative
// so the runtime dispatches through the generic JNI trampoline into our
// replacement instead of the compiled/interpreted original.
type artStrategy struct{}

func (artStrategy) offsets(api vmapi.Api) (*vmapi.ArtMethodOffsets, error) {
	spec, err := api.OffsetSpec()
	if err != nil {
		return nil, err
	}
	return &spec.ArtMethod, nil
}

func (s artStrategy) snapshot(api vmapi.Api, m *member.Method) (any, error) {
	off, err := s.offsets(api)
	if err != nil {
		return nil, err
	}
	addr := uint64(m.ID)
	jniCode, err := readU64(api, addr+uint64(off.JniCode))
	if err != nil {
		return nil, err
	}
	quickCode, err := readU64(api, addr+uint64(off.QuickCode))
	if err != nil {
		return nil, err
	}
	interpCode, err := readU64(api, addr+uint64(off.InterpreterCode))
	if err != nil {
		return nil, err
	}
	flags, err := readU32(api, addr+uint64(off.AccessFlags))
	if err != nil {
		return nil, err
	}
	return artSnapshot{jniCode: jniCode, quickCode: quickCode, interpCode: interpCode, accessFlags: flags}, nil
}

func (s artStrategy) patch(api vmapi.Api, m *member.Method, trampolineAddr uint64) error {
	off, err := s.offsets(api)
	if err != nil {
		return err
	}
	addr := uint64(m.ID)

	genericTrampoline, err := api.QuickGenericJniTrampoline()
	if err != nil {
		return err
	}
	interpreterBridge, err := api.InterpreterToCompiledCodeBridge()
	if err != nil {
		return err
	}

	flags, err := readU32(api, addr+uint64(off.AccessFlags))
	if err != nil {
		return err
	}
	flags |= vmapi.AccNative | vmapi.AccFastNative

	if err := writeU64(api, addr+uint64(off.JniCode), trampolineAddr); err != nil {
		return err
	}
	if err := writeU64(api, addr+uint64(off.QuickCode), genericTrampoline); err != nil {
		return err
	}
	if err := writeU64(api, addr+uint64(off.InterpreterCode), interpreterBridge); err != nil {
		return err
	}
	return writeU32(api, addr+uint64(off.AccessFlags), flags)
}

// prepareCall is a no-op: the ArtMethod patch needs no call-time setup
// beyond what patch already wrote.
func (artStrategy) prepareCall(env jnienv.Env, api vmapi.Api, m *member.Method, args []uint64) error {
	return nil
}

// directTarget is unchanged: the nonvirtual JNI path already reaches
// the original implementation through m.ID without any clone.
func (artStrategy) directTarget(m *member.Method) jnienv.MethodID {
	return m.ID
}

func (s artStrategy) restore(api vmapi.Api, m *member.Method, snap any) error {
	off, err := s.offsets(api)
	if err != nil {
		return err
	}
	ss := snap.(artSnapshot)
	addr := uint64(m.ID)
	if err := writeU64(api, addr+uint64(off.JniCode), ss.jniCode); err != nil {
		return err
	}
	if err := writeU64(api, addr+uint64(off.QuickCode), ss.quickCode); err != nil {
		return err
	}
	if err := writeU64(api, addr+uint64(off.InterpreterCode), ss.interpCode); err != nil {
		return err
	}
	return writeU32(api, addr+uint64(off.AccessFlags), ss.accessFlags)
}
