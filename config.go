package kokia

import (
	"fmt"
	"time"
)

// Config is the session-scoped configuration (C9). It is decoded from a
// YAML document the same way the teacher decodes `FilterSettings`/
// `RulesetDefinition`: via `parseYmlBuffer`, a generic-map-then-
// mapstructure two-step (see parse_yml.go).
type Config struct {
	GraceWindow time.Duration `mapstructure:"grace_window"`

	MaxPerRead  int `mapstructure:"max_per_read"`
	MaxTotal    int `mapstructure:"max_total"`
	MaxDepth    int `mapstructure:"max_depth"`
	MaxElements int `mapstructure:"max_elements"`

	// ParentInference selects the priority order of spec.md §4.7 step 2:
	// "unwinder" tries the unwinder scan first and falls back to
	// scope-top; "scope-top" skips the unwinder scan entirely.
	ParentInference string `mapstructure:"parent_inference"`

	// ABI names the calling convention used to locate the first-argument
	// register (argRegisterFor), e.g. "sysv-amd64" or "arm64".
	ABI string `mapstructure:"abi"`

	EnableGraphExport bool `mapstructure:"enable_graph_export"`

	// DenyList names generator type names the Layout Analyzer should
	// never treat as a generator (spec.md §9 Open Questions).
	DenyList []string `mapstructure:"deny_list"`
}

// DefaultConfig returns the configuration documented in SPEC_FULL.md
// §4.9, mirroring the teacher's factory-supplied defaults.
func DefaultConfig() Config {
	return Config{
		GraceWindow:       5 * time.Minute,
		MaxPerRead:        4096,
		MaxTotal:          1 << 20,
		MaxDepth:          3,
		MaxElements:       16,
		ParentInference:   "unwinder",
		ABI:               "sysv-amd64",
		EnableGraphExport: false,
	}
}

// Validate fills in any zero-valued field with its default and rejects
// an unrecognized ParentInference value, mirroring the teacher's
// Config.Validate degrade-or-reject split.
func (cfg *Config) Validate() error {
	def := DefaultConfig()

	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = def.GraceWindow
	}
	if cfg.MaxPerRead <= 0 {
		cfg.MaxPerRead = def.MaxPerRead
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = def.MaxTotal
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MaxElements <= 0 {
		cfg.MaxElements = def.MaxElements
	}
	if cfg.ABI == "" {
		cfg.ABI = def.ABI
	}

	switch cfg.ParentInference {
	case "":
		cfg.ParentInference = def.ParentInference
	case "unwinder", "scope-top":
		// ok
	default:
		return fmt.Errorf("config: parent_inference invalid: %q", cfg.ParentInference)
	}

	return nil
}

// limits projects the decode-relevant fields of cfg into a DecodeLimits,
// the shape the Value Decoder actually consumes.
func (cfg *Config) limits() DecodeLimits {
	return DecodeLimits{
		MaxPerRead:  cfg.MaxPerRead,
		MaxTotal:    cfg.MaxTotal,
		MaxDepth:    cfg.MaxDepth,
		MaxElements: cfg.MaxElements,
	}
}

// LoadConfig reads and decodes a YAML configuration file at path,
// applying Validate before returning it.
func LoadConfig(path string) (Config, error) {
	cfg, err := parseYmlFile(path, parseYmlBuffer[Config])
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return *cfg, nil
}
