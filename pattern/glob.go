// Package pattern implements the RDB watch-pattern grammar (spec §4.5/§6):
// '/'-separated segments, each either a literal (exact match) or the
// special segment "*", which absorbs zero or more whole key segments.
// Ground truth is `_examples/original_source/test/ksmatch.cpp`: e.g.
// "/system/*/value" matches both "/system/key0/value" (one absorbed
// segment) and "/system/key0/key1/value" (two absorbed segments) and
// "/system/value" (zero absorbed segments) — '*' is a segment-level
// wildcard, not a within-segment byte wildcard, and it does not require
// the pattern and key to have equal segment counts.
package pattern

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Match reports whether key satisfies pattern under the grammar above.
func Match(pattern, key string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(key, "/"))
}

// matchSegments runs the classic '*'-wildcard matching algorithm at segment
// granularity instead of byte granularity: a "*" pattern segment plays the
// role '*' plays in a character-level glob, greedily trying to absorb zero
// key segments first and backtracking to absorb one more on mismatch.
func matchSegments(p, k []string) bool {
	pi, ki := 0, 0
	starIdx, kTmp := -1, 0

	for ki < len(k) {
		if pi < len(p) && p[pi] == "*" {
			starIdx = pi
			kTmp = ki
			pi++
			continue
		}
		if pi < len(p) && p[pi] == k[ki] {
			pi++
			ki++
			continue
		}
		if starIdx != -1 {
			pi = starIdx + 1
			kTmp++
			ki = kTmp
			continue
		}
		return false
	}

	for pi < len(p) && p[pi] == "*" {
		pi++
	}
	return pi == len(p)
}

// Hash derives the stable 64-bit identity used in the "mxevt::rdbw-<hex64>"
// watch event name (§4.5/§6). xxhash was already an indirect dependency
// (pulled in by prometheus/client_golang) and is promoted to direct use
// here, replacing the incomplete crc16 hasher referenced by the teacher's
// core/pkg/hashkit (its implementation file wasn't part of the retrieved
// pack, only its test).
func Hash(p string) uint64 {
	return xxhash.Sum64String(p)
}

// WatchEventName formats the reserved event name for a watch pattern.
func WatchEventName(p string) string {
	return "mxevt::rdbw-" + hexUint64(Hash(p))
}

func hexUint64(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
