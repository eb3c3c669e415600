package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/yanun0323/decimal"

	"main/internal/feed"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Transport TransportConfig    `json:"transport"`
	Book      BookConfig         `json:"book"`
	Feed      FeedConfig         `json:"feed"`
	Archive   ArchiveConfig      `json:"archive"`
	Features  FeatureFlagsConfig `json:"features"`
}

// TransportConfig defines the shared-memory segment map.
type TransportConfig struct {
	Dir           string           `json:"dir"`
	Exchanges     []ExchangeConfig `json:"exchanges"`
	TradeCapacity uint64           `json:"tradeCapacity"`
	DeltaCapacity uint64           `json:"deltaCapacity"`
}

// ExchangeConfig names one exchange and its symbols.
type ExchangeConfig struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// BookConfig bounds the tracked book and paces baseline republication.
type BookConfig struct {
	Depth            int `json:"depth"`
	SnapshotInterval int `json:"snapshotInterval"`
}

// FeedConfig drives the synthetic generator. Prices come in as decimals
// so configs can write "100.5" without float literal noise.
type FeedConfig struct {
	IntervalMs int             `json:"intervalMs"`
	Levels     int             `json:"levels"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	Spread     decimal.Decimal `json:"spread"`
	BaseVolume decimal.Decimal `json:"baseVolume"`
	Seed       int64           `json:"seed"`
}

// ArchiveConfig points the trade archiver at Postgres.
type ArchiveConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	User      string `json:"user"`
	Password  string `json:"password"`
	Database  string `json:"database"`
	BatchSize int    `json:"batchSize"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableTrades *bool `json:"enableTrades"`
	EnableDeltas *bool `json:"enableDeltas"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableTrades bool
	EnableDeltas bool
}

// FeedSpec is the resolved generator definition.
type FeedSpec struct {
	IntervalMs int
	Levels     int
	BasePrice  float64
	Spread     float64
	BaseVolume float64
	Seed       int64
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Segments         feed.SegmentConfig
	Symbols          map[string][]string
	Depth            int
	SnapshotInterval int
	Feed             FeedSpec
	Archive          ArchiveConfig
	Features         FeatureFlags
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and applies defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Transport.Dir == "" {
		return Loaded{}, fmt.Errorf("transport dir is empty")
	}
	if len(cfg.Transport.Exchanges) == 0 {
		return Loaded{}, fmt.Errorf("no exchanges configured")
	}

	exchanges := make([]string, 0, len(cfg.Transport.Exchanges))
	symbols := make(map[string][]string, len(cfg.Transport.Exchanges))
	for _, ex := range cfg.Transport.Exchanges {
		if ex.Name == "" {
			return Loaded{}, fmt.Errorf("exchange name is empty")
		}
		if len(ex.Symbols) == 0 {
			return Loaded{}, fmt.Errorf("exchange %s has no symbols", ex.Name)
		}
		if _, dup := symbols[ex.Name]; dup {
			return Loaded{}, fmt.Errorf("duplicate exchange: %s", ex.Name)
		}
		exchanges = append(exchanges, ex.Name)
		symbols[ex.Name] = ex.Symbols
	}

	depth := cfg.Book.Depth
	if depth == 0 {
		depth = 64
	}
	if depth < 0 {
		return Loaded{}, fmt.Errorf("book depth must be > 0")
	}
	snapshotInterval := cfg.Book.SnapshotInterval
	if snapshotInterval == 0 {
		snapshotInterval = 256
	}
	if snapshotInterval < 0 {
		return Loaded{}, fmt.Errorf("book snapshotInterval must be > 0")
	}

	feedSpec, err := resolveFeed(cfg.Feed)
	if err != nil {
		return Loaded{}, err
	}

	archive := cfg.Archive
	if archive.BatchSize == 0 {
		archive.BatchSize = 128
	}
	if archive.BatchSize < 0 {
		return Loaded{}, fmt.Errorf("archive batchSize must be > 0")
	}

	return Loaded{
		Segments: feed.SegmentConfig{
			Dir:           cfg.Transport.Dir,
			Exchanges:     exchanges,
			TradeCapacity: cfg.Transport.TradeCapacity,
			DeltaCapacity: cfg.Transport.DeltaCapacity,
		},
		Symbols:          symbols,
		Depth:            depth,
		SnapshotInterval: snapshotInterval,
		Feed:             feedSpec,
		Archive:          archive,
		Features:         resolveFeatures(cfg.Features),
	}, nil
}

func resolveFeed(cfg FeedConfig) (FeedSpec, error) {
	spec := FeedSpec{
		IntervalMs: cfg.IntervalMs,
		Levels:     cfg.Levels,
		Seed:       cfg.Seed,
	}
	if spec.IntervalMs < 0 {
		return FeedSpec{}, fmt.Errorf("feed intervalMs must be >= 0")
	}
	if spec.Levels == 0 {
		spec.Levels = 20
	}
	if spec.Levels < 0 {
		return FeedSpec{}, fmt.Errorf("feed levels must be > 0")
	}

	var err error
	if spec.BasePrice, err = decimalValue(cfg.BasePrice, 100); err != nil {
		return FeedSpec{}, fmt.Errorf("feed basePrice: %w", err)
	}
	if spec.Spread, err = decimalValue(cfg.Spread, 0.5); err != nil {
		return FeedSpec{}, fmt.Errorf("feed spread: %w", err)
	}
	if spec.BaseVolume, err = decimalValue(cfg.BaseVolume, 1); err != nil {
		return FeedSpec{}, fmt.Errorf("feed baseVolume: %w", err)
	}
	if spec.BasePrice <= 0 {
		return FeedSpec{}, fmt.Errorf("feed basePrice must be > 0")
	}
	return spec, nil
}

func decimalValue(d decimal.Decimal, fallback float64) (float64, error) {
	s := d.String()
	if s == "" || s == "0" {
		return fallback, nil
	}
	return strconv.ParseFloat(s, 64)
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableTrades: true,
		EnableDeltas: true,
	}
	if cfg.EnableTrades != nil {
		flags.EnableTrades = *cfg.EnableTrades
	}
	if cfg.EnableDeltas != nil {
		flags.EnableDeltas = *cfg.EnableDeltas
	}
	return flags
}
