// Package ring identifies the timelines fences are ordered on.
package ring

import (
	"fmt"
	"hash/maphash"
)

type Kind uint8

const (
	KindGlobal Kind = iota
	KindContextSpecific
)

// Ring is either the global ring or one ring of a guest context.
// The zero value is the global ring. Ring is comparable and used directly as a map key.
type Ring struct {
	kind    Kind
	ctxID   uint32
	ringIdx uint8
}

func Global() Ring {
	return Ring{kind: KindGlobal}
}

func ContextSpecific(ctxID uint32, ringIdx uint8) Ring {
	return Ring{kind: KindContextSpecific, ctxID: ctxID, ringIdx: ringIdx}
}

func (r Ring) Kind() Kind { return r.kind }

func (r Ring) IsGlobal() bool { return r.kind == KindGlobal }

// CtxID is only meaningful for context specific rings.
func (r Ring) CtxID() uint32 { return r.ctxID }

// RingIdx is only meaningful for context specific rings.
func (r Ring) RingIdx() uint8 { return r.ringIdx }

func (r Ring) String() string {
	if r.kind == KindGlobal {
		return "global"
	}
	return fmt.Sprintf("context specific {ctx = %d, ring = %d}", r.ctxID, r.ringIdx)
}

const globalHash = 0x676c6f62616c // "global"

var seed = maphash.MakeSeed()

// Hash returns a process-local hash of r. Equal rings hash equally.
func (r Ring) Hash() uint64 {
	if r.kind == KindGlobal {
		return globalHash
	}
	res := maphash.Comparable(seed, r.ctxID)
	res ^= maphash.Comparable(seed, r.ringIdx) + 0x9e3779b9 + (res << 6) + (res >> 2)
	return res
}
