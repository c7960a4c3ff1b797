package classifier

import (
	"math"

	"FlowSentry/internal/domain/models"
	domsvc "FlowSentry/internal/domain/service"
)

// PriceVolume flags simultaneous price and volume z-score breaches.
// Requiring both guards against thin-volume price noise. When EmitSingle is
// set, a lone breach still yields a price_spike or volume_spike finding.
type PriceVolume struct {
	priceZ     threshold
	volumeZ    threshold
	emitSingle bool
}

// NewPriceVolume creates the classifier. Both z thresholds default to 2.0.
func NewPriceVolume(priceZ, volumeZ float64, emitSingle bool) *PriceVolume {
	if priceZ <= 0 {
		priceZ = 2.0
	}
	if volumeZ <= 0 {
		volumeZ = 2.0
	}
	c := &PriceVolume{emitSingle: emitSingle}
	c.priceZ.store(priceZ)
	c.volumeZ.store(volumeZ)
	return c
}

func (c *PriceVolume) Name() string { return "price_volume" }

func (c *PriceVolume) Emits() []models.AnomalyType {
	return []models.AnomalyType{
		models.AnomalyPriceVolumeSpike,
		models.AnomalyPriceSpike,
		models.AnomalyVolumeSpike,
	}
}

func (c *PriceVolume) Recalibrate(factor float64) {
	if factor > 0 {
		c.priceZ.scale(factor)
		c.volumeZ.scale(factor)
	}
}

func (c *PriceVolume) DetectTick(t *models.MarketTick, b *models.BaselineSnapshot) (*models.AnomalyEvent, error) {
	// A 0 z-score means no signal (flat or short history), never "at the mean".
	pz := b.PriceZScore(t.Price)
	vz := b.VolumeZScore(t.Volume)
	pLimit, vLimit := c.priceZ.load(), c.volumeZ.load()
	priceHit := pz != 0 && math.Abs(pz) >= pLimit
	volumeHit := vz != 0 && vz >= vLimit

	details := map[string]interface{}{
		"price_zscore":  pz,
		"volume_zscore": vz,
		"price":         t.Price,
		"volume":        t.Volume,
	}

	switch {
	case priceHit && volumeHit:
		sev := (severity(math.Abs(pz), pLimit) + severity(vz, vLimit)) / 2
		return finding(t.Timestamp, t.Ticker, models.AnomalyPriceVolumeSpike, sev, details), nil
	case priceHit && c.emitSingle:
		return finding(t.Timestamp, t.Ticker, models.AnomalyPriceSpike, severity(math.Abs(pz), pLimit), details), nil
	case volumeHit && c.emitSingle:
		return finding(t.Timestamp, t.Ticker, models.AnomalyVolumeSpike, severity(vz, vLimit), details), nil
	default:
		return nil, nil
	}
}

var _ domsvc.TickClassifier = (*PriceVolume)(nil)
