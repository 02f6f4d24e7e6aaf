package eml

import (
	"fmt"
	"strings"
)

// UpdateFrequency is the EML maintenanceUpdateFrequency vocabulary.
type UpdateFrequency int

const (
	FrequencyUnset UpdateFrequency = iota
	FrequencyAnnually
	FrequencyAsNeeded
	FrequencyBiannually
	FrequencyContinually
	FrequencyDaily
	FrequencyIrregular
	FrequencyMonthly
	FrequencyNotPlanned
	FrequencyWeekly
	FrequencyUnknown
	FrequencyOther
)

var frequencyIdentifiers = []string{
	FrequencyAnnually:    "annually",
	FrequencyAsNeeded:    "asNeeded",
	FrequencyBiannually:  "biannually",
	FrequencyContinually: "continually",
	FrequencyDaily:       "daily",
	FrequencyIrregular:   "irregular",
	FrequencyMonthly:     "monthly",
	FrequencyNotPlanned:  "notPlanned",
	FrequencyWeekly:      "weekly",
	FrequencyUnknown:     "unknown",
	FrequencyOther:       "otherMaintenancePeriod",
}

// String returns the EML identifier, or "" when unset.
func (f UpdateFrequency) String() string {
	if f <= FrequencyUnset || int(f) >= len(frequencyIdentifiers) {
		return ""
	}
	return frequencyIdentifiers[f]
}

// ParseUpdateFrequency matches an EML identifier case-insensitively. The
// historical misspelling "unkown" is accepted.
func ParseUpdateFrequency(s string) (UpdateFrequency, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unkown") {
		return FrequencyUnknown, nil
	}
	for f := FrequencyAnnually; int(f) < len(frequencyIdentifiers); f++ {
		if strings.EqualFold(s, frequencyIdentifiers[f]) {
			return f, nil
		}
	}
	return FrequencyUnset, fmt.Errorf("unknown maintenance update frequency %q", s)
}
