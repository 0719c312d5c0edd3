package main

import "testing"

func TestBindAddress(t *testing.T) {
	cases := []struct {
		debug, external bool
		want            string
	}{
		{debug: true, external: false, want: "127.0.0.1:5553"},
		{debug: true, external: true, want: "127.0.0.1:5553"},
		{debug: false, external: true, want: "0.0.0.0:53"},
		{debug: false, external: false, want: "127.0.0.1:53"},
	}
	for _, tc := range cases {
		if got := bindAddress(tc.debug, tc.external); got != tc.want {
			t.Errorf("bindAddress(%v, %v) = %q, want %q", tc.debug, tc.external, got, tc.want)
		}
	}
}
