// Package platform identifies the runtime profile the daemon ships under
// and the storage capabilities that come with it. The cache layer picks its
// backend from these capabilities instead of branching on the profile
// inline.
package platform

import "os"

// Profile names a supported runtime profile.
type Profile string

const (
	// ProfileDesktop has a structured on-device database available.
	ProfileDesktop Profile = "desktop"
	// ProfileLite only has a key-value preference store plus filesystem,
	// matching constrained embedded shells.
	ProfileLite Profile = "lite"
)

// Capabilities describes what storage a profile can rely on.
type Capabilities struct {
	StructuredStorage bool
	PersistentFS      bool
}

// Detect resolves the active profile. Precedence: explicit override
// (config.toml), PERKS_PLATFORM env var, desktop default.
func Detect(override string) Profile {
	if p, ok := parse(override); ok {
		return p
	}
	if p, ok := parse(os.Getenv("PERKS_PLATFORM")); ok {
		return p
	}
	return ProfileDesktop
}

// Capabilities returns the storage capabilities of the profile.
func (p Profile) Capabilities() Capabilities {
	switch p {
	case ProfileLite:
		return Capabilities{StructuredStorage: false, PersistentFS: true}
	default:
		return Capabilities{StructuredStorage: true, PersistentFS: true}
	}
}

func parse(s string) (Profile, bool) {
	switch Profile(s) {
	case ProfileDesktop, ProfileLite:
		return Profile(s), true
	}
	return "", false
}
