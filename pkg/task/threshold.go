package task

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultThreshold is the entropy at or above which a file is reported as high entropy.
	DefaultThreshold = 7.0
	// ThresholdOption is the task config key overriding [DefaultThreshold].
	ThresholdOption = "threshold"
)

// ParseThreshold reads the threshold option from a task config.
// A missing option yields the default and a nil error. Any finite number is used as given, even outside
// the 0 to 8 range entropy can take. A value that isn't a finite number yields the default and an error
// describing the problem, so callers can log it without failing the scan.
func ParseThreshold(taskConfig map[string]any) (float64, error) {
	raw, ok := taskConfig[ThresholdOption]
	if !ok || raw == nil {
		return DefaultThreshold, nil
	}

	var (
		val float64
		err error
	)

	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return DefaultThreshold, nil
		}
		val, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	case float64:
		val = v
	case float32:
		val = float64(v)
	case int:
		val = float64(v)
	case int64:
		val = float64(v)
	case json.Number:
		val, err = v.Float64()
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}

	switch {
	case err != nil:
		return DefaultThreshold, fmt.Errorf("invalid %s %v: %w", ThresholdOption, raw, err)
	case math.IsNaN(val) || math.IsInf(val, 0):
		return DefaultThreshold, fmt.Errorf("invalid %s %v: not a finite number", ThresholdOption, raw)
	}

	return val, nil
}
