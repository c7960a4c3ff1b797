package classifier

import (
	"FlowSentry/internal/domain/models"
	domsvc "FlowSentry/internal/domain/service"
)

// DarkVolume flags tickers whose off-exchange share of total volume has
// climbed past the configured ratio. Only evaluated on dark-pool prints so
// one elevated ratio does not fire on every lit tick.
type DarkVolume struct {
	ratio threshold
}

// NewDarkVolume creates the classifier. ratio defaults to 0.4.
func NewDarkVolume(ratio float64) *DarkVolume {
	if ratio <= 0 {
		ratio = 0.4
	}
	c := &DarkVolume{}
	c.ratio.store(ratio)
	return c
}

func (c *DarkVolume) Name() string { return "dark_volume" }

func (c *DarkVolume) Emits() []models.AnomalyType {
	return []models.AnomalyType{models.AnomalyDarkVolumeSpike}
}

func (c *DarkVolume) Recalibrate(factor float64) {
	if factor > 0 {
		c.ratio.scale(factor)
	}
}

func (c *DarkVolume) DetectTick(t *models.MarketTick, b *models.BaselineSnapshot) (*models.AnomalyEvent, error) {
	if !t.DarkPool {
		return nil, nil
	}
	limit := c.ratio.load()
	if b.DarkVolumeRatio <= limit {
		return nil, nil
	}
	return finding(t.Timestamp, t.Ticker, models.AnomalyDarkVolumeSpike, severity(b.DarkVolumeRatio, limit), map[string]interface{}{
		"dark_volume_ratio": b.DarkVolumeRatio,
		"threshold":         limit,
		"volume":            t.Volume,
	}), nil
}

var _ domsvc.TickClassifier = (*DarkVolume)(nil)
