// Package config holds the coordinator's functional-options Config,
// covering every row of spec.md §6's configuration table plus store and
// logging wiring. Ported from the teacher's internal/core/config.go
// ConfigOption/NewConfig pattern, trimmed of the DKG/postgres/grpc-dial
// options this protocol has no use for.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/xaynetwork/xaynet/common/log"
	"github.com/xaynetwork/xaynet/internal/mask"
	"github.com/xaynetwork/xaynet/internal/phase"
	"github.com/xaynetwork/xaynet/internal/selection"
)

// StoreKind selects which chain.Store backend the coordinator opens.
type StoreKind int

const (
	// StoreMemory opens internal/chain/memdb, losing all state on restart.
	StoreMemory StoreKind = iota
	// StoreBolt opens internal/chain/boltdb at StorePath.
	StoreBolt
)

// Config is the coordinator's fully resolved configuration. It is never
// mutated after NewConfig returns; callers that need a different
// configuration build a new one.
type Config struct {
	Log log.Logger

	// ModelLength is L, fixed for the coordinator's whole lifetime
	// (spec.md §3).
	ModelLength int

	// Mask is M: group_type, data_type, bound_type, model_type
	// (spec.md §3).
	Mask mask.Config

	// Thresholds are t_sum and t_update (spec.md §4.3).
	Thresholds selection.Thresholds

	// Phases carries (count_min, count_max, deadline_min, deadline_max)
	// for Sum, Update and Sum2 (spec.md §4.6).
	Phases phase.Config

	// FailOnDissent selects the Unmask behavior when Sum2 closes with
	// more than one distinct reconstructed mask (spec.md §9's Open
	// Question; default false, i.e. plurality selection).
	FailOnDissent bool

	// Store selects which chain.Store backend to open.
	Store     StoreKind
	StorePath string

	// RestoreEnable controls whether the coordinator loads the persisted
	// snapshot on startup instead of starting fresh at round 0
	// (spec.md §6's restore.enable).
	RestoreEnable bool
}

// ConfigOption mutates a Config under construction, the same shape as
// the teacher's ConfigOption.
type ConfigOption func(*Config)

// WithModelLength sets L.
func WithModelLength(l int) ConfigOption {
	return func(c *Config) { c.ModelLength = l }
}

// WithMask sets M.
func WithMask(m mask.Config) ConfigOption {
	return func(c *Config) { c.Mask = m }
}

// WithThresholds sets t_sum and t_update.
func WithThresholds(t selection.Thresholds) ConfigOption {
	return func(c *Config) { c.Thresholds = t }
}

// WithPhases sets every phase's count/deadline bounds.
func WithPhases(p phase.Config) ConfigOption {
	return func(c *Config) { c.Phases = p }
}

// WithFailOnDissent toggles Unmask's dissent behavior.
func WithFailOnDissent(v bool) ConfigOption {
	return func(c *Config) { c.FailOnDissent = v }
}

// WithBoltStore selects the durable backend at path.
func WithBoltStore(path string) ConfigOption {
	return func(c *Config) {
		c.Store = StoreBolt
		c.StorePath = path
	}
}

// WithMemoryStore selects the in-process backend.
func WithMemoryStore() ConfigOption {
	return func(c *Config) { c.Store = StoreMemory }
}

// WithRestoreEnable toggles whether the coordinator loads the persisted
// snapshot on startup (spec.md §6's restore.enable).
func WithRestoreEnable(v bool) ConfigOption {
	return func(c *Config) { c.RestoreEnable = v }
}

// defaultPhaseBounds mirrors a conservative single-node deployment: give
// every phase a generous deadline and a quorum of one, so an operator
// running a single coordinator against a handful of local participants
// sees rounds complete without editing a config file first.
func defaultPhaseBounds() phase.Bounds {
	return phase.Bounds{
		CountMin:    1,
		CountMax:    100,
		DeadlineMin: 0,
		DeadlineMax: 2 * time.Minute,
	}
}

// NewConfig builds a Config from opts, applied over sane defaults, the
// same composition shape as the teacher's NewConfig(l log.Logger, opts
// ...ConfigOption).
func NewConfig(l log.Logger, opts ...ConfigOption) (*Config, error) {
	c := &Config{
		Log:         l,
		ModelLength: 0,
		Mask:        mask.Config{Group: mask.Prime, Data: mask.F32, Bound: mask.B0, Model: mask.M3},
		Thresholds:  selection.Thresholds{Sum: 0.1, Update: 0.5},
		Phases: phase.Config{
			Sum:    defaultPhaseBounds(),
			Update: defaultPhaseBounds(),
			Sum2:   defaultPhaseBounds(),
		},
		Store: StoreMemory,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.ModelLength <= 0 {
		return nil, fmt.Errorf("config: model.length must be positive, got %d", c.ModelLength)
	}
	if !c.Thresholds.Validate() {
		return nil, fmt.Errorf("config: thresholds must satisfy 0 < sum < update < 1, got sum=%v update=%v",
			c.Thresholds.Sum, c.Thresholds.Update)
	}
	if c.Store == StoreBolt && c.StorePath == "" {
		return nil, fmt.Errorf("config: bolt store requires a non-empty path")
	}
	return c, nil
}

// fileConfig is the TOML-decodable mirror of spec.md §6's configuration
// table, loaded with github.com/BurntSushi/toml exactly as the teacher
// loads its own group/TOML configuration.
type fileConfig struct {
	Model struct {
		Length int `toml:"length"`
	} `toml:"model"`

	Mask struct {
		GroupType string `toml:"group_type"`
		DataType  string `toml:"data_type"`
		BoundType string `toml:"bound_type"`
		ModelType string `toml:"model_type"`
	} `toml:"mask"`

	Pet struct {
		Sum struct {
			Prob  float64 `toml:"prob"`
			Count struct {
				Min int `toml:"min"`
				Max int `toml:"max"`
			} `toml:"count"`
			Time struct {
				Min int `toml:"min"`
				Max int `toml:"max"`
			} `toml:"time"`
		} `toml:"sum"`
		Update struct {
			Prob  float64 `toml:"prob"`
			Count struct {
				Min int `toml:"min"`
				Max int `toml:"max"`
			} `toml:"count"`
			Time struct {
				Min int `toml:"min"`
				Max int `toml:"max"`
			} `toml:"time"`
		} `toml:"update"`
		Sum2 struct {
			Count struct {
				Min int `toml:"min"`
				Max int `toml:"max"`
			} `toml:"count"`
			Time struct {
				Min int `toml:"min"`
				Max int `toml:"max"`
			} `toml:"time"`
		} `toml:"sum2"`
	} `toml:"pet"`

	Restore struct {
		Enable bool `toml:"enable"`
	} `toml:"restore"`
}

// LoadTOML parses a TOML file at path into ConfigOptions layered on top
// of the defaults NewConfig already applies, matching spec.md §6's
// configuration table. Transport/TLS/S3 keys (api.*, redis.url, s3.*) are
// intentionally not parsed here: they belong to the external transport
// and persistence adapters per spec.md §1.
func LoadTOML(path string) ([]ConfigOption, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	var opts []ConfigOption
	if fc.Model.Length > 0 {
		opts = append(opts, WithModelLength(fc.Model.Length))
	}

	m, err := parseMaskConfig(fc)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithMask(m))

	if fc.Pet.Sum.Prob > 0 || fc.Pet.Update.Prob > 0 {
		opts = append(opts, WithThresholds(selection.Thresholds{Sum: fc.Pet.Sum.Prob, Update: fc.Pet.Update.Prob}))
	}

	opts = append(opts, WithPhases(phase.Config{
		Sum:    boundsFrom(fc.Pet.Sum.Count.Min, fc.Pet.Sum.Count.Max, fc.Pet.Sum.Time.Min, fc.Pet.Sum.Time.Max),
		Update: boundsFrom(fc.Pet.Update.Count.Min, fc.Pet.Update.Count.Max, fc.Pet.Update.Time.Min, fc.Pet.Update.Time.Max),
		Sum2:   boundsFrom(fc.Pet.Sum2.Count.Min, fc.Pet.Sum2.Count.Max, fc.Pet.Sum2.Time.Min, fc.Pet.Sum2.Time.Max),
	}))

	if fc.Restore.Enable {
		opts = append(opts, WithRestoreEnable(true))
	}

	return opts, nil
}

func boundsFrom(countMin, countMax, timeMin, timeMax int) phase.Bounds {
	b := defaultPhaseBounds()
	if countMin > 0 {
		b.CountMin = countMin
	}
	if countMax > 0 {
		b.CountMax = countMax
	}
	if timeMin > 0 {
		b.DeadlineMin = time.Duration(timeMin) * time.Second
	}
	if timeMax > 0 {
		b.DeadlineMax = time.Duration(timeMax) * time.Second
	}
	return b
}

func parseMaskConfig(fc fileConfig) (mask.Config, error) {
	var m mask.Config
	var err error
	if m.Group, err = parseGroupType(fc.Mask.GroupType); err != nil {
		return m, err
	}
	if m.Data, err = parseDataType(fc.Mask.DataType); err != nil {
		return m, err
	}
	if m.Bound, err = parseBoundType(fc.Mask.BoundType); err != nil {
		return m, err
	}
	if m.Model, err = parseModelType(fc.Mask.ModelType); err != nil {
		return m, err
	}
	return m, nil
}

func parseGroupType(s string) (mask.GroupType, error) {
	switch s {
	case "", "prime":
		return mask.Prime, nil
	case "power2":
		return mask.Power2, nil
	default:
		return 0, fmt.Errorf("config: unknown mask.group_type %q", s)
	}
}

func parseDataType(s string) (mask.DataType, error) {
	switch s {
	case "", "f32":
		return mask.F32, nil
	case "f64":
		return mask.F64, nil
	default:
		return 0, fmt.Errorf("config: unknown mask.data_type %q", s)
	}
}

func parseBoundType(s string) (mask.BoundType, error) {
	switch s {
	case "", "b0":
		return mask.B0, nil
	case "b2":
		return mask.B2, nil
	case "b4":
		return mask.B4, nil
	default:
		return 0, fmt.Errorf("config: unknown mask.bound_type %q", s)
	}
}

func parseModelType(s string) (mask.ModelType, error) {
	switch s {
	case "", "m3":
		return mask.M3, nil
	case "m6":
		return mask.M6, nil
	case "m9":
		return mask.M9, nil
	case "m12":
		return mask.M12, nil
	default:
		return 0, fmt.Errorf("config: unknown mask.model_type %q", s)
	}
}
