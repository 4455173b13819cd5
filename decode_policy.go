package kokia

import "fmt"

// DecodeLevel is the amount of effort the Value Decoder should spend on
// a generator type's fields, consolidating the teacher's FSDetailLevel
// concept (trace2receiver's per-command verbosity) into a per-generator-
// type decode budget override.
type DecodeLevel int

const (
	DecodeLevelUnset DecodeLevel = iota
	DecodeLevelSkip
	DecodeLevelSummary
	DecodeLevelStandard
	DecodeLevelVerbose
)

// Decode level names always carry a leading "dl:" so they can't collide
// with a generator type name when looked up through the same map.
const (
	DecodeLevelSkipName     string = "dl:skip"
	DecodeLevelSummaryName  string = "dl:summary"
	DecodeLevelStandardName string = "dl:standard"
	DecodeLevelVerboseName  string = "dl:verbose"

	DecodeLevelDefaultName  string      = DecodeLevelStandardName
	DecodeLevelDefault      DecodeLevel = DecodeLevelStandard
)

func getDecodeLevel(name string) (DecodeLevel, bool) {
	switch name {
	case DecodeLevelSkipName:
		return DecodeLevelSkip, true
	case DecodeLevelSummaryName:
		return DecodeLevelSummary, true
	case DecodeLevelStandardName:
		return DecodeLevelStandard, true
	case DecodeLevelVerboseName:
		return DecodeLevelVerbose, true
	default:
		return DecodeLevelUnset, false
	}
}

// DecodePolicy maps generator type names to a DecodeLevel override,
// consolidating the teacher's RulesetDefinition/FilterSettings pair (two
// near-duplicate concepts in the retrieval pack, see DESIGN.md) into one
// component.
type DecodePolicy struct {
	TypeMap  map[string]string   `mapstructure:"types"`
	Defaults DecodePolicyDefault `mapstructure:"defaults"`
}

// DecodePolicyDefault defines the fallback level when a generator type
// has no entry in TypeMap.
type DecodePolicyDefault struct {
	LevelName string `mapstructure:"level"`
}

// Validate checks that every TypeMap value and the default name (when
// given) is a recognized DecodeLevel name.
func (dp *DecodePolicy) Validate() error {
	for typeName, levelName := range dp.TypeMap {
		if _, ok := getDecodeLevel(levelName); !ok {
			return fmt.Errorf("decode_policy: type %q has invalid level %q", typeName, levelName)
		}
	}
	if dp.Defaults.LevelName == "" {
		dp.Defaults.LevelName = DecodeLevelDefaultName
	} else if _, ok := getDecodeLevel(dp.Defaults.LevelName); !ok {
		return fmt.Errorf("decode_policy: invalid default level %q", dp.Defaults.LevelName)
	}
	return nil
}

// LevelFor resolves the decode level for a generator type name: an exact
// TypeMap entry wins, otherwise the policy default, otherwise the
// builtin default.
func (dp *DecodePolicy) LevelFor(typeName string) DecodeLevel {
	if dp == nil {
		lvl, _ := getDecodeLevel(DecodeLevelDefaultName)
		return lvl
	}

	if name, ok := dp.TypeMap[typeName]; ok {
		if lvl, ok := getDecodeLevel(name); ok {
			return lvl
		}
	}

	if dp.Defaults.LevelName != "" {
		if lvl, ok := getDecodeLevel(dp.Defaults.LevelName); ok {
			return lvl
		}
	}

	lvl, _ := getDecodeLevel(DecodeLevelDefaultName)
	return lvl
}

// limitsForLevel narrows a base DecodeLimits according to lvl, the way
// the teacher's detail levels narrow the amount of OTLP emitted for a
// given command.
func limitsForLevel(base DecodeLimits, lvl DecodeLevel) DecodeLimits {
	switch lvl {
	case DecodeLevelSkip:
		return DecodeLimits{MaxPerRead: 0, MaxTotal: 0, MaxDepth: 0, MaxElements: 0}
	case DecodeLevelSummary:
		out := base
		out.MaxDepth = 1
		out.MaxElements = 4
		return out
	case DecodeLevelVerbose:
		out := base
		out.MaxDepth = base.MaxDepth * 2
		out.MaxElements = base.MaxElements * 4
		return out
	default:
		return base
	}
}

// LoadDecodePolicy reads and decodes a YAML decode-policy file at path.
func LoadDecodePolicy(path string) (*DecodePolicy, error) {
	dp, err := parseYmlFile(path, parseYmlBuffer[DecodePolicy])
	if err != nil {
		return nil, err
	}
	if err := dp.Validate(); err != nil {
		return nil, err
	}
	return dp, nil
}
