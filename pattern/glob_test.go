package pattern

import "testing"

// TestMatch mirrors the cases pinned down by
// _examples/original_source/test/ksmatch.cpp: '*' is a whole-segment
// wildcard that absorbs zero or more key segments.
func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"/system/*/value", "/system/key0/value", true},
		{"/system/*/value", "/system/key0/key1/value", true},
		{"/system/*/value", "/system/key0/novalue", false},
		{"/system/*/value", "/system/key0/key1/novalue", false},
		{"/system/*/value", "/system/key0/valueno", false},
		{"/system/*/value", "/system/key0/key1/valueno", false},

		{"/system/*/value", "/system0/key0/value", false},
		{"/system/*/value", "/system0/key0/key1/value", false},
		{"/system/*/value", "/system/value", true},
		{"/system/*/value", "/system0/value", false},
		{"/system/*/value", "/system/value0", false},

		{"/system/*/intermediate/*/value", "/system/key0/intermediate/key1/value", true},
		{"/system/*/intermediate/*/value", "/system/key0/intermediate0/key1/value", false},
		{"/system/*/intermediate/*/value", "/system/intermediate/value", true},

		{"/system/*/k1/*/k3/*/value", "/system/k0/k1/k2/k3/k4/value", true},

		{"/system/*", "/system/value0", true},
		{"/system/*", "/system/value1", true},

		{"/a/b", "/a/b", true},
		{"/a/b", "/a/c", false},
	}

	for _, c := range cases {
		if got := Match(c.pattern, c.key); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.key, got, c.want)
		}
	}
}

func TestWatchEventNameIsStableAndNamespaced(t *testing.T) {
	n1 := WatchEventName("/system/run/*")
	n2 := WatchEventName("/system/run/*")
	if n1 != n2 {
		t.Fatalf("WatchEventName not stable: %s != %s", n1, n2)
	}
	if len(n1) != len("mxevt::rdbw-")+16 {
		t.Fatalf("unexpected event name length: %s", n1)
	}
}
