package platform

import "testing"

func TestDetectPrecedence(t *testing.T) {
	if got := Detect("lite"); got != ProfileLite {
		t.Errorf("Detect(lite) = %q, want lite", got)
	}

	t.Setenv("PERKS_PLATFORM", "lite")
	if got := Detect(""); got != ProfileLite {
		t.Errorf("Detect with env = %q, want lite", got)
	}
	if got := Detect("desktop"); got != ProfileDesktop {
		t.Errorf("override should beat env, got %q", got)
	}

	t.Setenv("PERKS_PLATFORM", "")
	if got := Detect(""); got != ProfileDesktop {
		t.Errorf("default = %q, want desktop", got)
	}
	if got := Detect("garbage"); got != ProfileDesktop {
		t.Errorf("unknown override = %q, want desktop fallback", got)
	}
}

func TestCapabilities(t *testing.T) {
	if !ProfileDesktop.Capabilities().StructuredStorage {
		t.Error("desktop should have structured storage")
	}
	if ProfileLite.Capabilities().StructuredStorage {
		t.Error("lite should not have structured storage")
	}
	if !ProfileLite.Capabilities().PersistentFS {
		t.Error("lite should have a persistent filesystem")
	}
}
