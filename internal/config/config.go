package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/galois26/transient-correlator/internal/correlate"
)

type Server struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	StaticDir     string        `yaml:"static_dir"` // serve from disk instead of the embedded page
}

type Correlation struct {
	TimeWindowSeconds          float64 `yaml:"time_window_seconds"`
	SeparationThresholdDegrees float64 `yaml:"separation_threshold_degrees"`
	ParallelThreshold          int     `yaml:"parallel_threshold"` // batch size from which the scan is parallelized
	Workers                    int     `yaml:"workers"`            // 0 = GOMAXPROCS
}

type Log struct {
	Level   string `yaml:"level"`  // debug|info|warn|error
	Pretty  bool   `yaml:"pretty"` // console writer instead of JSON
	Service string `yaml:"service"`
}

type MetricsConfig struct {
	Enable bool `yaml:"enable"`
}

type CommonHTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// Resilience holds per-source retry and rate limit settings.
type Resilience struct {
	RatePerSecond float64       `yaml:"rate_per_second"` // e.g. 1.0 = 1 req/sec
	Burst         int           `yaml:"burst"`           // token bucket burst
	MaxRetries    int           `yaml:"max_retries"`     // retry attempts
	Backoff       time.Duration `yaml:"backoff"`         // initial backoff (e.g. 500ms)
	MaxBackoff    time.Duration `yaml:"max_backoff"`     // cap (e.g. 5s)
}

type ZTFConfig struct {
	BaseURL    string     `yaml:"base_url"`   // https://api.alerce.online/ztf/v1
	Classifier string     `yaml:"classifier"` // stamp_classifier
	ClassName  string     `yaml:"class_name"` // SN
	PageSize   int        `yaml:"page_size"`
	HTTP       CommonHTTP `yaml:"http"`
	Resilience `yaml:",inline"`
}

type GWOSCConfig struct {
	BaseURL  string     `yaml:"base_url"` // https://gwosc.org/api/v1
	PageSize int        `yaml:"page_size"`
	Seed     int64      `yaml:"seed"` // placeholder sky positions; 0 = time based
	HTTP     CommonHTTP `yaml:"http"`
	Resilience `yaml:",inline"`
}

type Sources struct {
	ZTF   ZTFConfig   `yaml:"ztf"`
	GWOSC GWOSCConfig `yaml:"gwosc"`
}

// Fallback controls the synthetic ZTF events used when the feed is unavailable.
type Fallback struct {
	Enable bool          `yaml:"enable"`
	Count  int           `yaml:"count"`
	MaxAge time.Duration `yaml:"max_age"` // events are spread over now-max_age .. now
	Seed   int64         `yaml:"seed"`    // 0 = time based
}

type LokiConfig struct {
	URL       string        `yaml:"url"`       // http://loki:3100
	TenantID  string        `yaml:"tenant_id"` // optional multi-tenancy
	Job       string        `yaml:"job"`       // label value
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type VictoriaConfig struct {
	URL       string        `yaml:"url"` // http://victoria-metrics:8428
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// ArchiveConfig enables the S3 sink; an empty bucket disables it.
type ArchiveConfig struct {
	Bucket  string        `yaml:"bucket"`
	Prefix  string        `yaml:"prefix"`
	Region  string        `yaml:"region"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

type Config struct {
	Server      Server         `yaml:"server"`
	Correlation Correlation    `yaml:"correlation"`
	Log         Log            `yaml:"log"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Sources     Sources        `yaml:"sources"`
	Fallback    Fallback       `yaml:"fallback"`
	Loki        LokiConfig     `yaml:"loki"`
	Victoria    VictoriaConfig `yaml:"victoria"`
	Archive     ArchiveConfig  `yaml:"archive"`

	// Policy is the validated correlation policy built from Correlation.
	Policy correlate.Policy `yaml:"-"`
}

// Load reads a YAML file, fills defaults and validates the correlation policy.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Metrics:  MetricsConfig{Enable: true},
		Fallback: Fallback{Enable: true},
	}
}

func (c *Config) finish() error {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":5000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Correlation.TimeWindowSeconds == 0 {
		c.Correlation.TimeWindowSeconds = correlate.DefaultTimeWindowSeconds
	}
	if c.Correlation.SeparationThresholdDegrees == 0 {
		c.Correlation.SeparationThresholdDegrees = correlate.DefaultSeparationDegrees
	}
	if c.Correlation.ParallelThreshold == 0 {
		c.Correlation.ParallelThreshold = 512
	}
	p, err := correlate.NewPolicy(c.Correlation.TimeWindowSeconds, c.Correlation.SeparationThresholdDegrees)
	if err != nil {
		return err
	}
	c.Policy = p

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Service == "" {
		c.Log.Service = "transient-correlator"
	}

	z := &c.Sources.ZTF
	if z.BaseURL == "" {
		z.BaseURL = "https://api.alerce.online/ztf/v1"
	}
	if z.Classifier == "" {
		z.Classifier = "stamp_classifier"
	}
	if z.ClassName == "" {
		z.ClassName = "SN"
	}
	if z.PageSize <= 0 {
		z.PageSize = 50
	}
	fillHTTP(&z.HTTP)
	fillResilience(&z.Resilience)

	g := &c.Sources.GWOSC
	if g.BaseURL == "" {
		g.BaseURL = "https://gwosc.org/api/v1"
	}
	if g.PageSize <= 0 {
		g.PageSize = 10
	}
	fillHTTP(&g.HTTP)
	fillResilience(&g.Resilience)

	if c.Fallback.Count <= 0 {
		c.Fallback.Count = 20
	}
	if c.Fallback.MaxAge <= 0 {
		c.Fallback.MaxAge = 60 * time.Minute
	}

	if c.Loki.Job == "" {
		c.Loki.Job = c.Log.Service
	}
	if c.Loki.Timeout == 0 {
		c.Loki.Timeout = 10 * time.Second
	}
	if c.Victoria.Timeout == 0 {
		c.Victoria.Timeout = 10 * time.Second
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "runs/"
	}
	if c.Archive.Timeout == 0 {
		c.Archive.Timeout = 10 * time.Second
	}
	if c.Archive.Retries <= 0 {
		c.Archive.Retries = 3
	}
	return nil
}

func fillHTTP(h *CommonHTTP) {
	if h.Timeout == 0 {
		h.Timeout = 10 * time.Second
	}
	if h.UserAgent == "" {
		h.UserAgent = "transient-correlator/1.0"
	}
}

func fillResilience(r *Resilience) {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 2
	}
	if r.Backoff <= 0 {
		r.Backoff = 500 * time.Millisecond
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = 5 * time.Second
	}
	if r.RatePerSecond <= 0 {
		r.RatePerSecond = 2
	}
	if r.Burst <= 0 {
		r.Burst = 1
	}
}
