package revision

import (
	"encoding/json"
	"strings"

	apperrors "allocator/internal/errors"
)

// Mode selects how a percentage becomes a multiplier
type Mode int

const (
	// Increase multiplies by 1 + p/100
	Increase Mode = iota + 1
	// Decrease multiplies by 1 - p/100
	Decrease
	// Direct multiplies by p/100
	Direct
)

var modeNames = map[Mode]string{
	Increase: "increase",
	Decrease: "decrease",
	Direct:   "direct",
}

// ParseMode accepts increase, decrease and direct in any case, with or without a trailing "%"
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimSpace(strings.TrimSuffix(key, "%"))
	for m, name := range modeNames {
		if key == name {
			return m, nil
		}
	}
	return 0, apperrors.NewInvalidParameterError("unknown revision mode %q", s)
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether m is one of the defined modes
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Multiplier returns the factor applied to masked cells for percentage p
func (m Mode) Multiplier(p float64) float64 {
	switch m {
	case Increase:
		return 1 + p/100
	case Decrease:
		return 1 - p/100
	case Direct:
		return p / 100
	default:
		return 1
	}
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
