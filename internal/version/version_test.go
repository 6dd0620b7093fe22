package version

import "testing"

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("version is empty")
	}
	if v != "0.1.0" {
		t.Errorf("version = %q, want 0.1.0", v)
	}
}
