// Package session implements the SDK layer: handshake, feature gating, the
// app-version cache, the operation layer (send_query/wait_for_result), and
// the bootloader data sender, per spec.md §4.7-§4.9.
package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ytemiloluwa/device-sdk-go/internal/bitutil"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
)

// Version is a parsed "major.minor.patch" semver triple, comparable by
// value. The SDK uses it both for the device SDK version (which selects a
// PacketGeneration) and for per-app firmware versions (which gate
// operation compatibility).
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater than o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func (v Version) Less(o Version) bool    { return v.Compare(o) < 0 }
func (v Version) GreaterEq(o Version) bool { return v.Compare(o) >= 0 }

// InRange reports whether v sits in [from, to), a half-open semver range.
// A zero-value to is treated as +infinity (no upper bound).
func (v Version) InRange(from, to Version) bool {
	if v.Less(from) {
		return false
	}
	if to == (Version{}) {
		return true
	}
	return v.Less(to)
}

// ParseVersion parses a "M.m.p" string.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("session: invalid version string %q", s)
	}
	ints := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("session: invalid version string %q: %w", s, err)
		}
		ints[i] = n
	}
	return Version{Major: ints[0], Minor: ints[1], Patch: ints[2]}, nil
}

// FormatSDKVersion decodes the 12-hex-character handshake reply
// (major(4) minor(4) patch(4)) into "M.m.p", per §4.8 step 3.
func FormatSDKVersion(hex12 string) (string, error) {
	if len(hex12) != 12 {
		return "", fmt.Errorf("session: sdk version field must be 12 hex chars, got %d", len(hex12))
	}
	major, err := bitutil.FixedHexToUint(hex12[0:4])
	if err != nil {
		return "", fmt.Errorf("session: invalid major field: %w", err)
	}
	minor, err := bitutil.FixedHexToUint(hex12[4:8])
	if err != nil {
		return "", fmt.Errorf("session: invalid minor field: %w", err)
	}
	patch, err := bitutil.FixedHexToUint(hex12[8:12])
	if err != nil {
		return "", fmt.Errorf("session: invalid patch field: %w", err)
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}

// Packet-generation boundaries, per §4.8 step 4.
var (
	versionV1Low  = Version{0, 0, 1}
	versionV2Low  = Version{1, 0, 0}
	versionV3Low  = Version{2, 0, 0}
	versionV3High = Version{4, 0, 0}
)

// PacketGenerationForVersion maps a negotiated SDK version to the packet
// dialect the session should speak.
func PacketGenerationForVersion(v Version) (protocol.Generation, error) {
	switch {
	case v.InRange(versionV1Low, versionV2Low):
		return protocol.GenerationV1, nil
	case v.InRange(versionV2Low, versionV3Low):
		return protocol.GenerationV2, nil
	case v.InRange(versionV3Low, versionV3High):
		return protocol.GenerationV3, nil
	default:
		return 0, fmt.Errorf("session: sdk version %s is outside any supported packet generation", v)
	}
}

// Feature names the per-operation minimum-version gates defined in §4.8.
type Feature string

const (
	// FeatureRawCommand covers v3 firmware that only understands the
	// legacy raw_data command shape (no protobuf payload).
	FeatureRawCommand Feature = "raw_command"
	// FeatureProtoCommand covers v3 firmware that understands the current
	// protobuf-carrying command shape.
	FeatureProtoCommand Feature = "proto_command"
)

var featureRanges = map[Feature][2]Version{
	FeatureRawCommand:   {{2, 0, 0}, {3, 0, 0}},
	FeatureProtoCommand: {{3, 0, 0}, {4, 0, 0}},
}

// IsSupported reports whether sdkVersion falls in the version range a
// feature is enabled for.
func IsSupported(feature Feature, sdkVersion Version) bool {
	r, ok := featureRanges[feature]
	if !ok {
		return false
	}
	return sdkVersion.InRange(r[0], r[1])
}
