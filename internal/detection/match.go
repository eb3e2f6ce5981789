package detection

import (
	"encoding/json"
	"strconv"

	"github.com/gzhole/memscope/internal/model"
)

// Match counts true positives. Each detected event claims the first
// unclaimed ground-truth event it matches; identical detections are not
// collapsed first.
func Match(detected, truth []model.Event) int {
	claimed := make([]bool, len(truth))
	n := 0
	for _, d := range detected {
		for i, t := range truth {
			if claimed[i] || !EventsMatch(d, t) {
				continue
			}
			claimed[i] = true
			n++
			break
		}
	}
	return n
}

// EventsMatch applies the first rule whose key both events carry:
// name → name and pid; local_address → both endpoints; base_address → name
// and base address. Events sharing none of those keys never match.
func EventsMatch(detected, truth model.Event) bool {
	switch {
	case detected.Has("name") && truth.Has("name"):
		return sameFields(detected, truth, "name", "pid")
	case detected.Has("local_address") && truth.Has("local_address"):
		return sameFields(detected, truth, "local_address", "local_port", "remote_address", "remote_port")
	case detected.Has("base_address") && truth.Has("base_address"):
		return sameFields(detected, truth, "name", "base_address")
	}
	return false
}

func sameFields(a, b model.Event, keys ...string) bool {
	for _, k := range keys {
		if !sameValue(a[k], b[k]) {
			return false
		}
	}
	return true
}

// sameValue compares two field values; numbers compare by value whatever
// their decoded type, so a pid of 4 equals json.Number("4").
func sameValue(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	if _, ok := number(b); ok {
		return false
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return sa == sb
	}
	return false
}

func number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	}
	return 0, false
}
