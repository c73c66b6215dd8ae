package radio

import (
	"testing"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGivenSF7WhenThirteenBytesThenAboutFortySixMilliseconds(t *testing.T) {
	a, err := NewAirtime(entities.RadioConfig{SpreadingFactor: 7, BandwidthKHz: 125, CodingRate: 5, Preamble: 8})
	require.NoError(t, err)

	d := a.TimeOnAir(13)

	assert.Greater(t, d, 40*time.Millisecond)
	assert.Less(t, d, 60*time.Millisecond)
}

func TestGivenHigherSpreadingFactorThenLongerAirtime(t *testing.T) {
	sf7, err := NewAirtime(entities.RadioConfig{SpreadingFactor: 7, BandwidthKHz: 125, CodingRate: 6, Preamble: 8})
	require.NoError(t, err)
	sf12, err := NewAirtime(entities.RadioConfig{SpreadingFactor: 12, BandwidthKHz: 125, CodingRate: 6, Preamble: 8})
	require.NoError(t, err)

	assert.Greater(t, sf12.TimeOnAir(33), sf7.TimeOnAir(33))
	assert.Greater(t, sf7.TimeOnAir(255), sf7.TimeOnAir(5))
	assert.True(t, sf12.lowDataRate())
}

func TestGivenUnsupportedCodingRateThenError(t *testing.T) {
	_, err := NewAirtime(entities.RadioConfig{SpreadingFactor: 7, BandwidthKHz: 125, CodingRate: 9, Preamble: 8})
	assert.Error(t, err)
}
