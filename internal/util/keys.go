package util

import (
	"github.com/cespare/xxhash/v2"
)

// StorageKey returns the provider key for a logical entry key inside a namespace.
func StorageKey(ns, key string) string {
	return "entry:" + ns + ":" + key
}

// Lane maps key onto one of n lanes. Same key => same lane.
func Lane(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}
