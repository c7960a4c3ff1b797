package classifier

import (
	"math"

	"FlowSentry/internal/domain/models"
	domsvc "FlowSentry/internal/domain/service"
)

// NewsMagnet flags strongly scored headlines that tend to pull price action
// toward the named ticker. Market-wide headlines are attributed to the
// MARKET sentinel ticker.
type NewsMagnet struct {
	sentiment threshold
}

// NewNewsMagnet creates the classifier. sentiment magnitude defaults to 0.5.
func NewNewsMagnet(sentiment float64) *NewsMagnet {
	if sentiment <= 0 {
		sentiment = 0.5
	}
	c := &NewsMagnet{}
	c.sentiment.store(sentiment)
	return c
}

func (c *NewsMagnet) Name() string { return "news_magnet" }

func (c *NewsMagnet) Emits() []models.AnomalyType {
	return []models.AnomalyType{models.AnomalyNewsMagnet}
}

func (c *NewsMagnet) Recalibrate(factor float64) {
	if factor > 0 {
		c.sentiment.scale(factor)
	}
}

func (c *NewsMagnet) DetectNews(n *models.NewsEvent) (*models.AnomalyEvent, error) {
	limit := c.sentiment.load()
	mag := math.Abs(n.Sentiment)
	if mag < limit {
		return nil, nil
	}
	ticker := n.Ticker
	if ticker == "" {
		ticker = models.MarketTicker
	}
	return finding(n.Timestamp, ticker, models.AnomalyNewsMagnet, severity(mag, limit), map[string]interface{}{
		"headline":  n.Headline,
		"source":    n.Source,
		"sentiment": n.Sentiment,
	}), nil
}

var _ domsvc.NewsClassifier = (*NewsMagnet)(nil)
