// Package heap implements Component F, the Heap Enumerator: Dalvik-only
// live-instance scanning of a class's heap via the raw object-header
// class-pointer layout (spec §4.F). ART exposes no equivalent symbol in
// this bridge's scope, so Choose on an ART-attached process fails with
// HeapScanUnsupported (spec §4.F Non-goals).
package heap

import (
	"github.com/halvard/jbridge/internal/classwrap"
	"github.com/halvard/jbridge/internal/jerr"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/vmapi"
)

// objectAlignment is Dalvik's minimum object alignment; scanning steps
// by this stride rather than byte-by-byte.
const objectAlignment = 8

// MatchResult is returned from an OnMatch callback to control scanning.
type MatchResult int

const (
	// Continue resumes scanning for further instances.
	Continue MatchResult = iota
	// Stop ends the scan immediately (spec §4.F "stop" early termination).
	Stop
)

// Callbacks is the choose(name, {...}) handler pair of spec §4.F.
type Callbacks struct {
	OnMatch    func(inst *classwrap.ClassInstance) MatchResult
	OnComplete func()
}

// Enumerator walks the attached process's live heap for instances of a
// named class.
type Enumerator struct {
	env   jnienv.Env
	api   vmapi.Api
	cache *classwrap.Cache
}

// New creates an Enumerator bound to one attached process's Cache.
func New(env jnienv.Env, api vmapi.Api, cache *classwrap.Cache) *Enumerator {
	return &Enumerator{env: env, api: api, cache: cache}
}

// Choose scans the heap for live instances whose object header's class
// pointer matches className's resolved Class handle, invoking
// cb.OnMatch for each, then cb.OnComplete once scanning ends (whether by
// exhausting the heap or an OnMatch returning Stop).
func (e *Enumerator) Choose(className string, cb Callbacks) error {
	if e.api.Flavor() != vmapi.Dalvik {
		return jerr.New(jerr.HeapScanUnsupported, "heap enumeration requires a Dalvik-attached process")
	}

	w, err := e.cache.Use(className)
	if err != nil {
		return err
	}
	wantClassPtr := e.api.DecodeIndirectRef(uint64(w.Ref))

	base := e.api.HeapSourceBase()
	limit := e.api.HeapSourceLimit()

	for addr := base; addr < limit; addr += objectAlignment {
		if !e.api.IsValidObject(addr) {
			continue
		}
		classWord, err := readU64(e.api, addr)
		if err != nil {
			continue
		}
		if classWord != wantClassPtr {
			continue
		}

		localAddr, err := e.api.AddLocalReference(addr)
		if err != nil {
			continue
		}
		inst, err := e.cache.Cast(jnienv.Ref(localAddr), className)
		if err != nil {
			continue
		}
		ci, ok := inst.(*classwrap.ClassInstance)
		if !ok || ci == nil {
			continue
		}
		if cb.OnMatch != nil && cb.OnMatch(ci) == Stop {
			break
		}
	}

	if cb.OnComplete != nil {
		cb.OnComplete()
	}
	return nil
}

func readU64(api vmapi.Api, addr uint64) (uint64, error) {
	b, err := api.ReadMemory(addr, 8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}
