package util

import "testing"

func TestStorageKeyNamespaced(t *testing.T) {
	if got := StorageKey("http", "http://200/"); got != "entry:http:http://200/" {
		t.Fatalf("got %q", got)
	}
}

func TestLaneStableAndInRange(t *testing.T) {
	const n = 8
	for _, k := range []string{"a", "b", "http://200/", ""} {
		l := Lane(k, n)
		if l < 0 || l >= n {
			t.Fatalf("lane %d out of range for %q", l, k)
		}
		if Lane(k, n) != l {
			t.Fatalf("lane not stable for %q", k)
		}
	}
	if Lane("x", 1) != 0 || Lane("x", 0) != 0 {
		t.Fatalf("single lane must be 0")
	}
}
