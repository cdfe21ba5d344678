package geoip

import (
	"path/filepath"
	"testing"
)

func TestNilDatabase(t *testing.T) {
	var d *Database
	if got := d.Lookup("1.1.1.1"); got != "" {
		t.Errorf("nil database Lookup = %q", got)
	}
	if err := d.Close(); err != nil {
		t.Errorf("nil database Close = %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("Open of a missing file should fail")
	}
}
