package classifier

import (
	"FlowSentry/internal/domain/models"
	domsvc "FlowSentry/internal/domain/service"
)

// OptionsFlow flags urgent options activity: sweeps (flagged by the feed or
// implied by outsized contract volume) and prints whose volume is large
// relative to existing open interest.
type OptionsFlow struct {
	sweepVolume threshold
	oiRatio     float64 // volume/open-interest ratio that implies an OI spike
}

// NewOptionsFlow creates the classifier. sweepVolume defaults to 1000
// contracts, oiRatio to 0.5.
func NewOptionsFlow(sweepVolume, oiRatio float64) *OptionsFlow {
	if sweepVolume <= 0 {
		sweepVolume = 1000
	}
	if oiRatio <= 0 {
		oiRatio = 0.5
	}
	c := &OptionsFlow{oiRatio: oiRatio}
	c.sweepVolume.store(sweepVolume)
	return c
}

func (c *OptionsFlow) Name() string { return "options_flow" }

func (c *OptionsFlow) Emits() []models.AnomalyType {
	return []models.AnomalyType{models.AnomalyOptionsSweep, models.AnomalyOptionsOISpike}
}

func (c *OptionsFlow) Recalibrate(factor float64) {
	if factor > 0 {
		c.sweepVolume.scale(factor)
	}
}

func (c *OptionsFlow) DetectOptions(o *models.OptionsFlow, _ *models.BaselineSnapshot) (*models.AnomalyEvent, error) {
	limit := c.sweepVolume.load()
	details := map[string]interface{}{
		"strike":        o.Strike,
		"contract_type": o.ContractType,
		"volume":        o.Volume,
		"open_interest": o.OpenInterest,
		"is_sweep":      o.IsSweep,
	}

	if o.IsSweep || o.Volume >= limit {
		sev := severity(o.Volume, limit)
		if o.IsSweep && sev < 0.5 {
			// A confirmed sweep is urgent regardless of contract count.
			sev = 0.5
		}
		return finding(o.Timestamp, o.Ticker, models.AnomalyOptionsSweep, sev, details), nil
	}

	// Volume large against existing OI implies a position being built.
	if o.OpenInterest > 0 && o.Volume/o.OpenInterest >= c.oiRatio {
		details["oi_ratio"] = o.Volume / o.OpenInterest
		return finding(o.Timestamp, o.Ticker, models.AnomalyOptionsOISpike, severity(o.Volume/o.OpenInterest, c.oiRatio), details), nil
	}
	return nil, nil
}

var _ domsvc.OptionsClassifier = (*OptionsFlow)(nil)
