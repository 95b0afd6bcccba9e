package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Category is the agent family a record is routed to.
type Category string

const (
	CategoryNetwork Category = "network"
	CategoryVDI     Category = "vdi"
	CategoryLog     Category = "log"
	CategoryNone    Category = "none"
)

// Categories lists the routable categories in priority order.
var Categories = []Category{CategoryNetwork, CategoryVDI, CategoryLog}

// Operator compares a record value with a rule threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpContains     Operator = "contains"
)

// Unit tells how raw values are coerced before comparison.
type Unit string

const (
	UnitNone         Unit = ""
	UnitMilliseconds Unit = "ms"
	UnitRatio        Unit = "ratio"
)

// Rule is one row of the decision table. Fields are alternative names for
// the same metric; the rule fires if any present value satisfies it.
type Rule struct {
	Name      string   `json:"name"`
	Category  Category `json:"category"`
	Fields    []string `json:"fields"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold,omitempty"`
	Unit      Unit     `json:"unit,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}

// VDIKeywords mark a virtual desktop client in platform or device fields.
var VDIKeywords = []string{
	"vdi", "citrix", "vmware", "horizon", "avd", "wvd",
	"virtualdesktop", "virtual desktop", "cloudpc", "windows 365",
}

var defaultRules = []Rule{
	{
		Name:      "network.jitter",
		Category:  CategoryNetwork,
		Fields:    []string{"averageJitter", "avgJitter", "jitter", "jitterMs"},
		Operator:  OpGreater,
		Threshold: 30,
		Unit:      UnitMilliseconds,
	},
	{
		Name:      "network.packet_loss",
		Category:  CategoryNetwork,
		Fields:    []string{"averagePacketLossRate", "packetLossRate", "packetLoss"},
		Operator:  OpGreater,
		Threshold: 0.10,
		Unit:      UnitRatio,
	},
	{
		Name:      "network.round_trip",
		Category:  CategoryNetwork,
		Fields:    []string{"averageRoundTripTime", "roundTripTime", "roundTrip", "rtt", "rttMs"},
		Operator:  OpGreater,
		Threshold: 500,
		Unit:      UnitMilliseconds,
	},
	{
		Name:      "network.audio_degradation",
		Category:  CategoryNetwork,
		Fields:    []string{"averageAudioDegradation", "audioDegradation"},
		Operator:  OpGreater,
		Threshold: 1.0,
	},
	{
		Name:     "vdi.client",
		Category: CategoryVDI,
		Fields: []string{
			"clientPlatform", "platform", "platforms", "productFamily",
			"captureDeviceName", "renderDeviceName", "deviceName", "userAgent", "vdiMode",
		},
		Operator: OpContains,
		Keywords: VDIKeywords,
	},
	{
		Name:      "log.mic_glitch",
		Category:  CategoryLog,
		Fields:    []string{"micGlitchRate"},
		Operator:  OpGreater,
		Threshold: 10,
	},
	{
		Name:      "log.speaker_glitch",
		Category:  CategoryLog,
		Fields:    []string{"speakerGlitchRate"},
		Operator:  OpGreater,
		Threshold: 10,
	},
	{
		Name:      "log.signal_level",
		Category:  CategoryLog,
		Fields:    []string{"signalLevelDbfs", "signalLevel"},
		Operator:  OpLess,
		Threshold: -50,
	},
}

// DefaultRules returns a copy of the built-in decision table: network
// thresholds first, then VDI client detection, then device health.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	for i, r := range defaultRules {
		r.Fields = append([]string(nil), r.Fields...)
		r.Keywords = append([]string(nil), r.Keywords...)
		out[i] = r
	}
	return out
}

// Validate checks a single rule.
func (r Rule) Validate() error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	switch r.Category {
	case CategoryNetwork, CategoryVDI, CategoryLog:
	default:
		return fmt.Errorf("rule %s: unknown category %q", r.Name, r.Category)
	}
	if len(r.Fields) == 0 {
		return fmt.Errorf("rule %s: at least one field is required", r.Name)
	}
	switch r.Operator {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
	case OpContains:
		if len(r.Keywords) == 0 {
			return fmt.Errorf("rule %s: contains needs keywords", r.Name)
		}
	default:
		return fmt.Errorf("rule %s: unknown operator %q", r.Name, r.Operator)
	}
	switch r.Unit {
	case UnitNone, UnitMilliseconds, UnitRatio:
	default:
		return fmt.Errorf("rule %s: unknown unit %q", r.Name, r.Unit)
	}
	return nil
}

// ValidateRules checks every rule and rejects duplicate names.
func ValidateRules(rules []Rule) error {
	var errs []error
	seen := make(map[string]bool)
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("rule %s: duplicate name", r.Name))
		}
		seen[r.Name] = true
	}
	return errors.Join(errs...)
}

// LoadRules reads a JSON array of rules from path and validates it.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("decode rules %s: %w", path, err)
	}
	if err := ValidateRules(rules); err != nil {
		return nil, fmt.Errorf("invalid rules %s: %w", path, err)
	}
	return rules, nil
}
