package abi

import "github.com/Masterminds/semver/v3"

// abiVersion is the stable C-ABI's own semantic version, independent of the
// toolchain release version: it only bumps when an otter_* symbol's
// signature or behavior changes in a way that breaks existing generated
// code, mirroring how packagemanager/resolver.go treats module versions as
// semver.Version rather than opaque strings.
const abiVersionString = "1.0.0"

var abiVersion = semver.MustParse(abiVersionString)

//export otter_runtime_abi_version
func otter_runtime_abi_version() string {
	return abiVersion.String()
}

//export otter_runtime_abi_version_major
func otter_runtime_abi_version_major() int64 {
	return int64(abiVersion.Major())
}

//export otter_runtime_abi_version_minor
func otter_runtime_abi_version_minor() int64 {
	return int64(abiVersion.Minor())
}

// otter_runtime_abi_compatible reports whether a host built against
// requiredVersion can safely call into this ABI: compatible means same
// major version and this build's minor/patch is at or above what was
// requested, the usual semver-constraint meaning applied to an ABI surface
// instead of a dependency graph.
//
//export otter_runtime_abi_compatible
func otter_runtime_abi_compatible(requiredVersion string) bool {
	required, err := semver.NewVersion(requiredVersion)
	if err != nil {
		return false
	}

	if required.Major() != abiVersion.Major() {
		return false
	}

	return !abiVersion.LessThan(required)
}
