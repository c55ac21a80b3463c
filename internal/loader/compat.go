package loader

import (
	"github.com/Masterminds/semver/v3"
	"github.com/hourglassapp/hourglass/internal/hosterr"
)

// vtableAPIVersions maps this host's integer Host API vtable version
// (hostapi.VTableVersion) to the semver range of manifest api_version
// strings it accepts. The host enforces the numeric vtable discipline
// internally and
// cross-checks it against the manifest's declared semver api_version at
// load time, rather than picking one to the exclusion of the other.
var vtableAPIVersions = map[int]string{
	1: ">=1.0.0, <2.0.0",
}

// CheckAPIVersion verifies manifest's declared Compat.APIVersion is
// compatible with the host's vtable version, returning a
// VersionIncompatible error otherwise. Called by the Loader before the
// library is even opened.
func CheckAPIVersion(vtableVersion int, apiVersion string) error {
	constraintStr, ok := vtableAPIVersions[vtableVersion]
	if !ok {
		return hosterr.New(hosterr.Internal, "host vtable version %d has no known API range", vtableVersion)
	}
	constraint, err := semver.NewConstraint(constraintStr)
	if err != nil {
		return hosterr.Wrap(hosterr.Internal, err, "parsing host API constraint")
	}
	v, err := semver.NewVersion(apiVersion)
	if err != nil {
		return hosterr.Wrap(hosterr.VersionIncompatible, err, "manifest api_version %q is not valid semver", apiVersion)
	}
	if !constraint.Check(v) {
		return hosterr.New(hosterr.VersionIncompatible,
			"manifest api_version %q is incompatible with host vtable version %d (%s)", apiVersion, vtableVersion, constraintStr)
	}
	return nil
}
