package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
)

func TestFormatSDKVersion(t *testing.T) {
	v, err := FormatSDKVersion("000100000010")
	require.NoError(t, err)
	assert.Equal(t, "1.0.16", v)
}

func TestFormatSDKVersionRejectsWrongLength(t *testing.T) {
	_, err := FormatSDKVersion("0001")
	assert.Error(t, err)
}

func TestPacketGenerationForVersion(t *testing.T) {
	cases := []struct {
		version string
		want    protocol.Generation
	}{
		{"0.0.1", protocol.GenerationV1},
		{"0.9.9", protocol.GenerationV1},
		{"1.0.0", protocol.GenerationV2},
		{"1.9.9", protocol.GenerationV2},
		{"2.0.0", protocol.GenerationV3},
		{"2.7.1", protocol.GenerationV3},
		{"3.9.9", protocol.GenerationV3},
	}
	for _, tc := range cases {
		v, err := ParseVersion(tc.version)
		require.NoError(t, err)
		gen, err := PacketGenerationForVersion(v)
		require.NoError(t, err)
		assert.Equal(t, tc.want, gen, "version %s", tc.version)
	}
}

func TestPacketGenerationForVersionOutOfRange(t *testing.T) {
	v, err := ParseVersion("4.0.0")
	require.NoError(t, err)
	_, err = PacketGenerationForVersion(v)
	assert.Error(t, err)

	v, err = ParseVersion("0.0.0")
	require.NoError(t, err)
	_, err = PacketGenerationForVersion(v)
	assert.Error(t, err)
}

func TestIsSupported(t *testing.T) {
	v2, _ := ParseVersion("2.5.0")
	v3, _ := ParseVersion("3.5.0")

	assert.True(t, IsSupported(FeatureRawCommand, v2))
	assert.False(t, IsSupported(FeatureProtoCommand, v2))

	assert.False(t, IsSupported(FeatureRawCommand, v3))
	assert.True(t, IsSupported(FeatureProtoCommand, v3))
}

func TestVersionCompareAndInRange(t *testing.T) {
	a := Version{1, 2, 3}
	b := Version{1, 2, 4}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, a.InRange(Version{1, 0, 0}, Version{2, 0, 0}))
	assert.False(t, a.InRange(Version{1, 3, 0}, Version{2, 0, 0}))
	assert.True(t, a.InRange(Version{0, 0, 0}, Version{}))
}
