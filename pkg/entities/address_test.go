package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestGivenAddressThenFixedLengthString(t *testing.T) {
	assert.Equal(t, "0102:00A7", Address{Gateway: 0x0102, Node: 0xA7}.String())
	assert.Equal(t, "0000:0000", Address{}.String())
}

func TestGivenRenderedAddressWhenParsedThenSameAddress(t *testing.T) {
	a := Address{Gateway: 0xBEEF, Node: 0x0001}
	parsed, err := ParseAddress(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestGivenMalformedAddressThenParseFails(t *testing.T) {
	for _, s := range []string{"", "0102", "0102:00A7:01", "zz02:0001", "102:1"} {
		_, err := ParseAddress(s)
		assert.ErrorIs(t, err, ErrInvalidAddress, s)
	}
}

func TestGivenWildcardsThenAcceptsMatchingFrames(t *testing.T) {
	discovery := Address{Gateway: 1, Node: 0}
	assert.True(t, discovery.Accepts(Address{Gateway: 0, Node: 9}))
	assert.True(t, discovery.Accepts(Address{Gateway: 1, Node: 9}))
	assert.False(t, discovery.Accepts(Address{Gateway: 2, Node: 9}))

	unbound := Address{Gateway: 0, Node: 9}
	assert.True(t, unbound.Accepts(Address{Gateway: 5, Node: 9}))
	assert.False(t, unbound.Accepts(Address{Gateway: 5, Node: 8}))
}

func TestGivenAddressWhenYAMLRoundTripThenString(t *testing.T) {
	out, err := yaml.Marshal(map[string]Address{"a": {Gateway: 1, Node: 2}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "0001:0002")

	var back map[string]Address
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, Address{Gateway: 1, Node: 2}, back["a"])
}
