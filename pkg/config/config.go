package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"log"`
	Ingest struct {
		Source string `yaml:"source"` // kafka or websocket
	} `yaml:"ingest"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Ticks   string `yaml:"ticks"`
			News    string `yaml:"news"`
			Options string `yaml:"options"`
			Alerts  string `yaml:"alerts"`
			Logs    string `yaml:"logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		Archive          struct {
			Enabled      bool          `yaml:"enabled"`
			BatchSize    int           `yaml:"batch_size"`
			BatchTimeout time.Duration `yaml:"batch_timeout"`
		} `yaml:"archive"`
	} `yaml:"clickhouse"`
	Cache struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Stream struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"stream"`
	Alerting struct {
		Backends   []string      `yaml:"backends"` // any of log, webhook, kafka
		WebhookURL string        `yaml:"webhook_url"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"alerting"`
	Detection struct {
		Tickers []string `yaml:"tickers"`

		Baseline struct {
			Window         time.Duration `yaml:"window"`
			UpdateInterval time.Duration `yaml:"update_interval"`
			MaxSamples     int           `yaml:"max_samples"`
		} `yaml:"baseline"`

		Classifiers struct {
			BlockTradeMultiple float64 `yaml:"block_trade_multiple"`
			BlockTradeFloor    float64 `yaml:"block_trade_floor"`
			DarkVolumeRatio    float64 `yaml:"dark_volume_ratio"`
			PriceZScore        float64 `yaml:"price_zscore"`
			VolumeZScore       float64 `yaml:"volume_zscore"`
			EmitSingleSpikes   bool    `yaml:"emit_single_spikes"`
			OptionsSweepVolume float64 `yaml:"options_sweep_volume"`
			OptionsOIRatio     float64 `yaml:"options_oi_ratio"`
			NewsSentimentFloor float64 `yaml:"news_sentiment_floor"`
		} `yaml:"classifiers"`

		Cluster struct {
			Window            time.Duration      `yaml:"window"`
			MinEvents         int                `yaml:"min_events"`
			TypeWeights       map[string]float64 `yaml:"type_weights"`
			MediumThreshold   float64            `yaml:"medium_threshold"`
			HighThreshold     float64            `yaml:"high_threshold"`
			CriticalThreshold float64            `yaml:"critical_threshold"`
		} `yaml:"cluster"`

		Feedback struct {
			MoveThreshold1m        float64       `yaml:"move_threshold_1m"`
			MoveThreshold5m        float64       `yaml:"move_threshold_5m"`
			MoveThreshold15m       float64       `yaml:"move_threshold_15m"`
			MinSamples             int           `yaml:"min_samples"`
			RecalibrationThreshold float64       `yaml:"recalibration_threshold"`
			Window                 time.Duration `yaml:"window"`
			MaxFalsePositiveRate   float64       `yaml:"max_false_positive_rate"`
			IncreaseFactor         float64       `yaml:"increase_factor"`
			DecreaseFactor         float64       `yaml:"decrease_factor"`
			History                int           `yaml:"history"`
		} `yaml:"feedback"`

		Buffers struct {
			Ticks     int `yaml:"ticks"`
			News      int `yaml:"news"`
			Options   int `yaml:"options"`
			Anomalies int `yaml:"anomalies"`
			Clusters  int `yaml:"clusters"`
		} `yaml:"buffers"`

		RecentAnomalies int           `yaml:"recent_anomalies"`
		WorkerQueue     int           `yaml:"worker_queue"`
		DispatchQueue   int           `yaml:"dispatch_queue"`
		DispatchWorkers int           `yaml:"dispatch_workers"`
		DrainTimeout    time.Duration `yaml:"drain_timeout"`
	} `yaml:"detection"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("TICKERS"); v != "" {
		c.Detection.Tickers = strings.Split(v, ",")
	}
	if v := os.Getenv("INGEST_SOURCE"); v != "" {
		c.Ingest.Source = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Alerting.WebhookURL = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Ingest.Source == "" {
		return fmt.Errorf("ingest.source is required")
	}
	if c.Ingest.Source != "kafka" && c.Ingest.Source != "websocket" {
		return fmt.Errorf("ingest.source must be 'kafka' or 'websocket', got '%s'", c.Ingest.Source)
	}
	if c.Ingest.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty with kafka ingest")
	}
	if c.Ingest.Source == "websocket" {
		if c.Stream.WebSocketURL == "" {
			return fmt.Errorf("stream.websocket_url is required with websocket ingest")
		}
		if c.Stream.APIKey == "" {
			return fmt.Errorf("stream.api_key is required with websocket ingest")
		}
	}
	for _, backend := range c.Alerting.Backends {
		switch backend {
		case "log":
		case "webhook":
			if c.Alerting.WebhookURL == "" {
				return fmt.Errorf("alerting.webhook_url is required with the webhook backend")
			}
		case "kafka":
			if len(c.Kafka.Brokers) == 0 {
				return fmt.Errorf("kafka.brokers cannot be empty with the kafka alert backend")
			}
			if c.Kafka.Topics.Alerts == "" {
				return fmt.Errorf("kafka.topics.alerts is required with the kafka alert backend")
			}
		default:
			return fmt.Errorf("alerting.backends must contain only 'log', 'webhook' or 'kafka', got '%s'", backend)
		}
	}
	// Conviction thresholds must stay strictly ordered; zero values fall back
	// to defaults which already are.
	cl := c.Detection.Cluster
	if cl.MediumThreshold != 0 || cl.HighThreshold != 0 || cl.CriticalThreshold != 0 {
		if !(cl.MediumThreshold < cl.HighThreshold && cl.HighThreshold < cl.CriticalThreshold) {
			return fmt.Errorf("detection.cluster thresholds must be strictly increasing (medium < high < critical)")
		}
	}
	fb := c.Detection.Feedback
	if fb.DecreaseFactor != 0 && (fb.DecreaseFactor < 0 || fb.DecreaseFactor >= 1) {
		return fmt.Errorf("detection.feedback.decrease_factor must be in (0, 1)")
	}
	if fb.IncreaseFactor != 0 && fb.IncreaseFactor <= 1 {
		return fmt.Errorf("detection.feedback.increase_factor must be greater than 1")
	}
	return nil
}
