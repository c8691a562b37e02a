package abi

import "testing"

func TestABIVersionString(t *testing.T) {
	if v := otter_runtime_abi_version(); v != "1.0.0" {
		t.Fatalf("version = %q, want %q", v, "1.0.0")
	}
}

func TestABIVersionMajorMinor(t *testing.T) {
	if got := otter_runtime_abi_version_major(); got != 1 {
		t.Fatalf("major = %d, want 1", got)
	}

	if got := otter_runtime_abi_version_minor(); got != 0 {
		t.Fatalf("minor = %d, want 0", got)
	}
}

func TestABICompatibleSameMajor(t *testing.T) {
	if !otter_runtime_abi_compatible("1.0.0") {
		t.Fatal("expected 1.0.0 to be compatible with itself")
	}
}

func TestABIIncompatibleAcrossMajor(t *testing.T) {
	if otter_runtime_abi_compatible("2.0.0") {
		t.Fatal("expected major version 2 to be incompatible with ABI major version 1")
	}

	if otter_runtime_abi_compatible("0.9.0") {
		t.Fatal("expected major version 0 to be incompatible with ABI major version 1")
	}
}

func TestABICompatibleRejectsNewerMinor(t *testing.T) {
	if otter_runtime_abi_compatible("1.5.0") {
		t.Fatal("expected a minor version ahead of this build to be reported incompatible")
	}
}

func TestABICompatibleRejectsGarbageVersion(t *testing.T) {
	if otter_runtime_abi_compatible("not-a-version") {
		t.Fatal("expected garbage version string to be rejected")
	}
}
