package costar

import (
	"errors"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *KVStore {
	t.Helper()
	s, err := OpenKVStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("OpenKVStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKVRoundTrip(t *testing.T) {
	s := testStore(t)

	if err := s.Put("geo", "tz", "America/Los_Angeles"); err != nil {
		t.Fatal(err)
	}
	if got := s.GetString("geo", "tz", ""); got != "America/Los_Angeles" {
		t.Errorf("GetString = %q", got)
	}

	// overwrite
	if err := s.Put("geo", "tz", "America/Denver"); err != nil {
		t.Fatal(err)
	}
	if got := s.GetString("geo", "tz", ""); got != "America/Denver" {
		t.Errorf("after overwrite = %q", got)
	}

	// namespaces are independent
	if got := s.GetString("settings", "tz", "none"); got != "none" {
		t.Errorf("cross-namespace leak: %q", got)
	}
}

func TestKVTypedAccess(t *testing.T) {
	s := testStore(t)

	if err := s.PutFloat("geo", "lat", 37.7749); err != nil {
		t.Fatal(err)
	}
	if err := s.PutInt("geo", "off_min", -480); err != nil {
		t.Fatal(err)
	}
	if err := s.PutBool("settings", "clock_24h", true); err != nil {
		t.Fatal(err)
	}

	if got := s.GetFloat("geo", "lat", 0); got != 37.7749 {
		t.Errorf("GetFloat = %v", got)
	}
	if got := s.GetInt("geo", "off_min", -32768); got != -480 {
		t.Errorf("GetInt = %v", got)
	}
	if !s.GetBool("settings", "clock_24h", false) {
		t.Error("GetBool = false")
	}

	// defaults on missing keys
	if got := s.GetInt("geo", "missing", -32768); got != -32768 {
		t.Errorf("missing int default = %v", got)
	}
	if got := s.GetFloat("geo", "missing", -1); got != -1 {
		t.Errorf("missing float default = %v", got)
	}
}

func TestKVDelete(t *testing.T) {
	s := testStore(t)

	if err := s.Put("geo", "label", "Oakland"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("geo", "label"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("geo", "label"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	// deleting again is fine
	if err := s.Delete("geo", "label"); err != nil {
		t.Fatal(err)
	}
}
