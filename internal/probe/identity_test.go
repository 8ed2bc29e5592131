package probe

import "testing"

func TestCanonicalDiskName(t *testing.T) {
	cases := map[string]string{
		"/dev/sda1":       "sda",
		"/dev/sda":        "sda",
		"sdb2":            "sdb",
		"/dev/nvme0n1p1":  "nvme0n1",
		"nvme0n1":         "nvme0n1",
		"/dev/mmcblk0p1":  "mmcblk0",
		"vdc":             "vdc",
	}
	for in, want := range cases {
		if got := canonicalDiskName(in); got != want {
			t.Errorf("canonicalDiskName(%q) = %q, want %q", in, got, want)
		}
	}
}
