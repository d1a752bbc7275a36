package features

import (
	"math"

	"github.com/Masterminds/semver/v3"
)

// #region schema

// SchemaVersion identifies the slot layout below. Slot order never changes
// within a version.
const SchemaVersion = "v1"

// Len is the number of slots in a v1 vector.
const Len = 16

var keys = [Len]string{
	"task1_total_duration_ms",
	"task1_field_interaction_count",
	"task1_error_count",
	"task1_help_requests",
	"task1_zip_corrections",
	"task2_total_duration_ms",
	"task2_error_count",
	"task2_filter_resets",
	"task2_mouse_entropy",
	"task2_decision_time_ms",
	"task3_total_actions",
	"task3_budget_overruns",
	"task3_cost_adjustments",
	"task3_idle_periods",
	"task3_mouse_entropy_hotels",
	"task3_mouse_entropy_meetings",
}

var keyIndex = func() map[string]int {
	m := make(map[string]int, Len)
	for i, k := range keys {
		m[k] = i
	}
	return m
}()

// Keys returns the ordered slot names.
func Keys() []string {
	out := make([]string, Len)
	copy(out, keys[:])
	return out
}

// Index returns the slot position for key, or -1 when the key is unknown.
func Index(key string) int {
	if i, ok := keyIndex[key]; ok {
		return i
	}
	return -1
}

// #endregion schema

// #region validate

// Validate reports whether vec has exactly Len slots and every slot is finite.
func Validate(vec []float64) bool {
	if len(vec) != Len {
		return false
	}
	for _, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// CompatibleVersion reports whether v shares SchemaVersion's major version.
// Unparseable versions are incompatible.
func CompatibleVersion(v string) bool {
	want, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return false
	}
	got, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	return got.Major() == want.Major()
}

// #endregion validate
