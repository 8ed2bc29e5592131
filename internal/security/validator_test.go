package security

import "testing"

func TestValidatePID(t *testing.T) {
	cases := []struct {
		pid     int
		wantErr bool
	}{
		{0, true},
		{1, true},
		{5, true},
		{9, true},
		{10, false},
		{4321, false},
	}
	for _, c := range cases {
		err := ValidatePID(c.pid)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidatePID(%d) error=%v, wantErr=%v", c.pid, err, c.wantErr)
		}
	}
}

func TestValidateProcessNameRejectsMetacharacters(t *testing.T) {
	for _, bad := range []string{"nginx; rm -rf /", "a|b", "$(whoami)", "`id`"} {
		if err := ValidateProcessName(bad); err == nil {
			t.Errorf("expected rejection for %q", bad)
		}
	}
	if err := ValidateProcessName("nginx"); err != nil {
		t.Errorf("unexpected rejection: %v", err)
	}
}

func TestValidateServiceName(t *testing.T) {
	if err := ValidateServiceName("nginx.service"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateServiceName("nginx service"); err == nil {
		t.Error("expected rejection for whitespace")
	}
	if err := ValidateServiceName("nginx;rm"); err == nil {
		t.Error("expected rejection for metacharacter")
	}
}

func TestValidateContainerID(t *testing.T) {
	hex64 := "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
	for _, good := range []string{"abcdef012345", hex64, "my_container-1"} {
		if err := ValidateContainerID(good); err != nil {
			t.Errorf("unexpected error for %q: %v", good, err)
		}
	}
	if err := ValidateContainerID("bad;name"); err == nil {
		t.Error("expected rejection")
	}
}

func TestValidatePackageName(t *testing.T) {
	if err := ValidatePackageName("openssl"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePackageName(".hidden"); err == nil {
		t.Error("expected rejection for leading non-alphanumeric")
	}
	if err := ValidatePackageName("pkg.."); err == nil {
		t.Error("expected rejection for \"..\"")
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://example.com/release.tar.gz"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateURL("ftp://example.com"); err == nil {
		t.Error("expected rejection for non-http scheme")
	}
	if err := ValidateURL("https://example.com/$(whoami)"); err == nil {
		t.Error("expected rejection for metacharacter")
	}
}

func TestPathValidatorRejectsTraversal(t *testing.T) {
	v := NewPathValidator()
	if _, err := v.Validate("/var/log/../etc/shadow"); err == nil {
		t.Error("expected path traversal rejection")
	}
}

func TestPathValidatorDenylist(t *testing.T) {
	v := NewPathValidator()
	if _, err := v.Validate("/etc/shadow"); err == nil {
		t.Error("expected denylist rejection for /etc/shadow")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqualString("secret-token", "secret-token") {
		t.Error("expected equal tokens to compare equal")
	}
	if ConstantTimeEqualString("secret-token", "different-token-x") {
		t.Error("expected different tokens to compare unequal")
	}
	if ConstantTimeEqualString("short", "") {
		t.Error("expected length mismatch to compare unequal")
	}
}
