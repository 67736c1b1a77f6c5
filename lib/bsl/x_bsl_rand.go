package bsl

import (
	randv2 "math/rand/v2"
)

// randLevel draws the top linkage level for the block published by the
// next split. Each extra level is gained with probability p, with a
// fresh draw per iteration, capped at maxLevel-1.
func (t *xBsl) randLevel() int32 {
	l := int32(0)
	for randv2.Float64() < t.p && l < t.maxLevel-1 {
		l++
	}
	return l
}
