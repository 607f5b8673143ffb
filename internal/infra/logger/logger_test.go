package logger

import "testing"

func TestMaskIP(t *testing.T) {
	cases := []struct {
		name string
		ip   string
		want string
	}{
		{"ipv4", "192.168.1.100", "192.168.*.*"},
		{"ipv4 loopback", "127.0.0.1", "127.0.*.*"},
		{"ipv6", "2001:0db8:85a3:0000:0000:8a2e:0370:7334", "2001:0db8:85a3:0000:*:*:*:*"},
		{"ipv6 short", "::1", "***"},
		{"empty", "", ""},
		{"garbage", "not-an-ip", "***"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskIP(tc.ip); got != tc.want {
				t.Fatalf("MaskIP(%q) = %q, want %q", tc.ip, got, tc.want)
			}
		})
	}
}

func TestMaskExternalRef(t *testing.T) {
	cases := []struct {
		name string
		ref  string
		want string
	}{
		{"typical", "customer-9821", "cu***21"},
		{"short", "abcd", "***"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskExternalRef(tc.ref); got != tc.want {
				t.Fatalf("MaskExternalRef(%q) = %q, want %q", tc.ref, got, tc.want)
			}
		})
	}
}
