package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment: test
server:
  port: 8080
  shutdown_timeout: 10s
ingest:
  source: kafka
kafka:
  brokers: ["localhost:9092"]
  topics:
    ticks: market.ticks
    news: market.news
    options: market.options
    alerts: flow.alerts
alerting:
  backends: ["log", "kafka"]
detection:
  tickers: ["AAPL", "TSLA"]
  baseline:
    window: 30m
    update_interval: 60s
  cluster:
    window: 5m
    min_events: 2
    medium_threshold: 0.6
    high_threshold: 0.8
    critical_threshold: 0.9
    type_weights:
      options_sweep: 1.2
      news_magnet: 1.3
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, "kafka", c.Ingest.Source)
	assert.Equal(t, "market.ticks", c.Kafka.Topics.Ticks)
	assert.Equal(t, []string{"AAPL", "TSLA"}, c.Detection.Tickers)
	assert.Equal(t, 30*time.Minute, c.Detection.Baseline.Window)
	assert.Equal(t, 1.3, c.Detection.Cluster.TypeWeights["news_magnet"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadIngestSource(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	c.Ingest.Source = "carrier-pigeon"
	assert.ErrorContains(t, c.Validate(), "ingest.source")
}

func TestValidateRequiresStreamCredentialsForWebsocket(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	c.Ingest.Source = "websocket"
	assert.ErrorContains(t, c.Validate(), "stream.websocket_url")

	c.Stream.WebSocketURL = "wss://feed.example.com"
	assert.ErrorContains(t, c.Validate(), "stream.api_key")

	c.Stream.APIKey = "key"
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsUnorderedConvictionThresholds(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	c.Detection.Cluster.HighThreshold = 0.95 // above critical
	assert.ErrorContains(t, c.Validate(), "strictly increasing")
}

func TestValidateRejectsWebhookBackendWithoutURL(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	c.Alerting.Backends = []string{"webhook"}
	assert.ErrorContains(t, c.Validate(), "alerting.webhook_url")
}

func TestValidateRejectsBadFeedbackFactors(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	c.Detection.Feedback.IncreaseFactor = 0.9
	assert.ErrorContains(t, c.Validate(), "increase_factor")

	c.Detection.Feedback.IncreaseFactor = 1.15
	c.Detection.Feedback.DecreaseFactor = 1.2
	assert.ErrorContains(t, c.Validate(), "decrease_factor")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("TICKERS", "NVDA,AMD")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	c, err := LoadWithEnv(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "AMD"}, c.Detection.Tickers)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.Kafka.Brokers)
}
