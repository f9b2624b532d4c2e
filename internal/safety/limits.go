package safety

import "strings"

// dosageCeiling pairs a medicine name fragment with its safe daily milligram
// ceiling. Matching is by substring against the normalized request name, in
// declaration order so multi-fragment names resolve deterministically.
type dosageCeiling struct {
	fragment string
	limitMg  int
}

var safeDailyLimitsMg = []dosageCeiling{
	{"paracetamol", 4000},
	{"ibuprofen", 3200},
	{"aspirin", 4000},
	{"amoxicillin", 3000},
	{"ciprofloxacin", 1500},
}

// CeilingFor returns the safe daily milligram ceiling for a normalized
// medicine name. The second return is false when no ceiling is known, which
// means the dosage check does not apply at all, not that any dosage is unsafe.
func CeilingFor(normalizedName string) (int, bool) {
	for _, c := range safeDailyLimitsMg {
		if strings.Contains(normalizedName, c.fragment) {
			return c.limitMg, true
		}
	}
	return 0, false
}
