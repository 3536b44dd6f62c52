package util

import "testing"

func TestRowKeyRoundTrip(t *testing.T) {
	cases := []struct{ store, key string }{
		{"prices", "BTC-USD"},
		{"a:b", "c"},
		{"a", "b:c"},
		{"", "k"},
		{"s", ""},
	}
	for _, tc := range cases {
		rk := RowKey("fs", tc.store, tc.key)
		store, key, err := SplitRowKey("fs", rk)
		if err != nil {
			t.Fatalf("SplitRowKey(%q): %v", rk, err)
		}
		if store != tc.store || key != tc.key {
			t.Fatalf("got (%q,%q) want (%q,%q)", store, key, tc.store, tc.key)
		}
	}
}

func TestRowKeyNoCollision(t *testing.T) {
	if RowKey("fs", "a:b", "c") == RowKey("fs", "a", "b:c") {
		t.Fatalf("row keys collide across store ids")
	}
}

func TestSplitRowKeyRejectsForeign(t *testing.T) {
	for _, rk := range []string{"other:1:a:b", "fs:x:a:b", "fs:9:a:b", "fs"} {
		if _, _, err := SplitRowKey("fs", rk); err == nil {
			t.Fatalf("SplitRowKey accepted %q", rk)
		}
	}
}
