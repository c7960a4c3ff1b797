package classifier

import (
	"FlowSentry/internal/domain/models"
	domsvc "FlowSentry/internal/domain/service"
)

// BlockTrade flags single prints whose size is a large multiple of the
// rolling median trade size. The absolute share floor keeps illiquid names
// with a tiny median from firing constantly.
type BlockTrade struct {
	multiple threshold
	floor    float64
}

// NewBlockTrade creates the classifier. multiple defaults to 5x, floor to
// 10,000 shares.
func NewBlockTrade(multiple, floor float64) *BlockTrade {
	if multiple <= 0 {
		multiple = 5
	}
	if floor <= 0 {
		floor = 10000
	}
	c := &BlockTrade{floor: floor}
	c.multiple.store(multiple)
	return c
}

func (c *BlockTrade) Name() string { return "block_trade" }

func (c *BlockTrade) Emits() []models.AnomalyType {
	return []models.AnomalyType{models.AnomalyBlockTrade}
}

func (c *BlockTrade) Recalibrate(factor float64) {
	if factor > 0 {
		c.multiple.scale(factor)
	}
}

func (c *BlockTrade) DetectTick(t *models.MarketTick, b *models.BaselineSnapshot) (*models.AnomalyEvent, error) {
	if t.TradeSize <= 0 {
		return nil, nil
	}
	mult := b.TradeSizeMultiple(t.TradeSize)
	limit := c.multiple.load()
	if mult < limit || t.TradeSize < c.floor {
		return nil, nil
	}
	return finding(t.Timestamp, t.Ticker, models.AnomalyBlockTrade, severity(mult, limit), map[string]interface{}{
		"trade_size":  t.TradeSize,
		"median_size": b.TradeSizeMedian,
		"multiple":    mult,
		"price":       t.Price,
	}), nil
}

var _ domsvc.TickClassifier = (*BlockTrade)(nil)
