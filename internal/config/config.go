// README: Config loader; defaults, optional YAML file, then DISPATCH_* env overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DispatchConfig holds the timing and tuning knobs of the dispatch engine.
type DispatchConfig struct {
	// OfferWindow is the single authoritative offer lifetime; the driver countdown is derived from it.
	OfferWindow     time.Duration `yaml:"offer_window"`
	BookingTimeout  time.Duration `yaml:"booking_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	SweepThreshold  time.Duration `yaml:"sweep_threshold"`
	SweepLockTTL    time.Duration `yaml:"sweep_lock_ttl"`
	ExpiryTick      time.Duration `yaml:"expiry_tick"`
	AssumedSpeedKmh float64       `yaml:"assumed_speed_kmh"`
	FanOutLimit     int           `yaml:"fan_out_limit"`
}

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Firebase struct {
		ProjectID       string `yaml:"project_id"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"firebase"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Maps struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"maps"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// DefaultDispatch returns the production timings: 30s offers, 30 minute booking timeout, 5 minute sweeps.
func DefaultDispatch() DispatchConfig {
	return DispatchConfig{
		OfferWindow:     30 * time.Second,
		BookingTimeout:  30 * time.Minute,
		SweepInterval:   5 * time.Minute,
		SweepThreshold:  30 * time.Minute,
		SweepLockTTL:    4 * time.Minute,
		ExpiryTick:      5 * time.Second,
		AssumedSpeedKmh: 30,
		FanOutLimit:     8,
	}
}

func defaults() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.Kafka.Topic = "dispatch-events"
	cfg.Log.Level = "info"
	cfg.Dispatch = DefaultDispatch()
	return cfg
}

func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("DISPATCH_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	var errs []error
	setString(&cfg.HTTP.Addr, "DISPATCH_HTTP_ADDR")
	setString(&cfg.Firebase.ProjectID, "DISPATCH_FIREBASE_PROJECT_ID")
	setString(&cfg.Firebase.CredentialsFile, "DISPATCH_FIREBASE_CREDENTIALS")
	setString(&cfg.DB.DSN, "DISPATCH_DB_DSN")
	setString(&cfg.Redis.Addr, "DISPATCH_REDIS_ADDR")
	setString(&cfg.Redis.Password, "DISPATCH_REDIS_PASSWORD")
	if v := os.Getenv("DISPATCH_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitAndTrim(v)
	}
	setString(&cfg.Kafka.Topic, "DISPATCH_KAFKA_TOPIC")
	setString(&cfg.Maps.APIKey, "DISPATCH_MAPS_API_KEY")
	setString(&cfg.Log.Level, "DISPATCH_LOG_LEVEL")

	d := &cfg.Dispatch
	setDuration(&d.OfferWindow, "DISPATCH_OFFER_WINDOW", &errs)
	setDuration(&d.BookingTimeout, "DISPATCH_BOOKING_TIMEOUT", &errs)
	setDuration(&d.SweepInterval, "DISPATCH_SWEEP_INTERVAL", &errs)
	setDuration(&d.SweepThreshold, "DISPATCH_SWEEP_THRESHOLD", &errs)
	setDuration(&d.SweepLockTTL, "DISPATCH_SWEEP_LOCK_TTL", &errs)
	setDuration(&d.ExpiryTick, "DISPATCH_EXPIRY_TICK", &errs)
	setFloat(&d.AssumedSpeedKmh, "DISPATCH_ASSUMED_SPEED_KMH", &errs)
	setInt(&d.FanOutLimit, "DISPATCH_FAN_OUT_LIMIT", &errs)

	errs = append(errs, cfg.Dispatch.validate()...)
	return cfg, errors.Join(errs...)
}

func (d DispatchConfig) validate() []error {
	var errs []error
	if d.OfferWindow <= 0 {
		errs = append(errs, errors.New("offer window must be > 0"))
	}
	if d.BookingTimeout <= 0 {
		errs = append(errs, errors.New("booking timeout must be > 0"))
	}
	if d.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be > 0"))
	}
	if d.SweepThreshold <= 0 {
		errs = append(errs, errors.New("sweep threshold must be > 0"))
	}
	if d.SweepLockTTL <= 0 {
		errs = append(errs, errors.New("sweep lock ttl must be > 0"))
	} else if d.SweepLockTTL >= d.SweepInterval {
		errs = append(errs, errors.New("sweep lock ttl must be shorter than the sweep interval"))
	}
	if d.ExpiryTick <= 0 {
		errs = append(errs, errors.New("expiry tick must be > 0"))
	}
	if d.AssumedSpeedKmh <= 0 {
		errs = append(errs, errors.New("assumed speed must be > 0"))
	}
	if d.FanOutLimit <= 0 {
		errs = append(errs, errors.New("fan-out limit must be > 0"))
	}
	return errs
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func setString(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func setDuration(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setInt(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = n
	}
}

func setFloat(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
