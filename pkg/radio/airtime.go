package radio

import (
	"time"

	"github.com/brocaar/lorawan/airtime"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/pkg/errors"
)

// Airtime models the LoRa modulation the transceiver is configured with.
type Airtime struct {
	SpreadingFactor int
	BandwidthKHz    int
	CodingRate      airtime.CodingRate
	Preamble        int
}

var codingRates = map[int]airtime.CodingRate{
	5: airtime.CodingRate45,
	6: airtime.CodingRate46,
	7: airtime.CodingRate47,
	8: airtime.CodingRate48,
}

func NewAirtime(cfg entities.RadioConfig) (Airtime, error) {
	cr, ok := codingRates[cfg.CodingRate]
	if !ok {
		return Airtime{}, errors.Errorf("unsupported coding rate 4/%d", cfg.CodingRate)
	}
	a := Airtime{
		SpreadingFactor: cfg.SpreadingFactor,
		BandwidthKHz:    cfg.BandwidthKHz,
		CodingRate:      cr,
		Preamble:        cfg.Preamble,
	}
	if _, err := a.compute(1); err != nil {
		return Airtime{}, errors.Wrap(err, "airtime")
	}
	return a, nil
}

func (a Airtime) lowDataRate() bool {
	return a.SpreadingFactor >= 11 && a.BandwidthKHz == 125
}

func (a Airtime) compute(size int) (time.Duration, error) {
	return airtime.CalculateLoRaAirtime(size, a.SpreadingFactor, a.BandwidthKHz, a.Preamble, a.CodingRate, true, a.lowDataRate())
}

// TimeOnAir is the duration of a size byte packet, rounded up to the
// millisecond.
func (a Airtime) TimeOnAir(size int) time.Duration {
	d, err := a.compute(size)
	if err != nil {
		return time.Second
	}
	return d.Round(time.Millisecond) + time.Millisecond
}
