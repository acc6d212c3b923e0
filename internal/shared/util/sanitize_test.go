package util

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "labs.pdf", want: "labs.pdf"},
		{in: " scans/2024\\cbc.png ", want: "scans_2024_cbc.png"},
		{in: "a\x00b.txt", want: "ab.txt"},
		{in: "../etc/passwd", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := SanitizeFileName(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("SanitizeFileName(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct{ limit, offset, wantLimit, wantOffset int }{
		{0, 0, 20, 0},
		{-5, -1, 20, 0},
		{10, 5, 10, 5},
		{500, 0, 50, 0},
	}
	for _, tc := range cases {
		l, o := ClampPage(tc.limit, tc.offset, 20, 50)
		if l != tc.wantLimit || o != tc.wantOffset {
			t.Fatalf("ClampPage(%d,%d) = %d,%d", tc.limit, tc.offset, l, o)
		}
	}
}
