package locks

import (
	"golang.org/x/mod/semver"

	"github.com/kolkov/queuedsync/internal/park"
)

// Version information for the queued synchronizers.
const (
	// Version is the current module version in semver form.
	Version = "v0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes the synchronizer runtime.
type Info struct {
	// Version is the module version string.
	Version string

	// Algorithm names the queueing algorithm.
	Algorithm string

	// Parking names how blocked goroutines sleep by default ("channel":
	// through the Go scheduler).
	Parking string

	// ThreadParking names what Options.ThreadParking selects on this
	// platform: "futex" on linux, "channel" where it is unavailable.
	ThreadParking string
}

// GetInfo returns information about the synchronizer runtime.
//
// Example:
//
//	info := locks.GetInfo()
//	fmt.Printf("queuedsync %s (%s, %s)\n", info.Version, info.Algorithm, info.Parking)
func GetInfo() Info {
	return Info{
		Version:       Version,
		Algorithm:     "CLH wait queue",
		Parking:       park.Mechanism,
		ThreadParking: park.Futex.Effective().String(),
	}
}

// Compatible reports whether results produced by versions a and b can be
// compared. Before v1 minor versions may change behavior, so major and minor
// must match; from v1 on, the major version must match. Invalid versions are
// never compatible.
func Compatible(a, b string) bool {
	if !semver.IsValid(a) || !semver.IsValid(b) {
		return false
	}
	if semver.Major(a) == "v0" || semver.Major(b) == "v0" {
		return semver.MajorMinor(a) == semver.MajorMinor(b)
	}
	return semver.Major(a) == semver.Major(b)
}
