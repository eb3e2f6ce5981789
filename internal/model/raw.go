package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Category names one of the five fixed sections of a RawResult.
type Category string

const (
	CategoryProcesses Category = "processes"
	CategoryNetwork   Category = "network"
	CategoryModules   Category = "modules"
	CategoryRegions   Category = "memory_regions"
	CategoryArtifacts Category = "artifacts"
)

// Categories is the fixed extraction order used by every engine adapter.
var Categories = []Category{
	CategoryProcesses,
	CategoryNetwork,
	CategoryModules,
	CategoryRegions,
	CategoryArtifacts,
}

// RawRecord is one engine row, keyed by whatever field names the engine uses.
// Values are whatever the engine emitted: strings, JSON numbers, nested maps.
type RawRecord map[string]interface{}

// lookup returns the first present, non-nil value among keys.
func (r RawRecord) lookup(keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether any of keys is present with a non-nil value.
func (r RawRecord) Has(keys ...string) bool {
	_, ok := r.lookup(keys...)
	return ok
}

// String returns the first present key as a string, def otherwise. Numbers
// are rendered in decimal.
func (r RawRecord) String(def string, keys ...string) string {
	v, ok := r.lookup(keys...)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// Address is like String but renders integer values as 0x-prefixed hex, the
// way engines print offsets in text mode.
func (r RawRecord) Address(def string, keys ...string) string {
	v, ok := r.lookup(keys...)
	if !ok {
		return def
	}
	if s, isStr := v.(string); isStr {
		return s
	}
	if n, isNum := toInt64(v); isNum {
		return fmt.Sprintf("0x%x", n)
	}
	return r.String(def, keys...)
}

// Int returns the first present key as an int. Values that cannot be
// interpreted as a number yield def.
func (r RawRecord) Int(def int, keys ...string) int {
	v, ok := r.lookup(keys...)
	if !ok {
		return def
	}
	if n, isNum := toInt64(v); isNum {
		return int(n)
	}
	return def
}

// Float returns the first present key as a float64, def otherwise.
func (r RawRecord) Float(def float64, keys ...string) float64 {
	v, ok := r.lookup(keys...)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return def
}

func toInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		s := strings.TrimSpace(t)
		// base 0 accepts the 0x-prefixed offsets engines print
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// RawResult is the unnormalized output of one engine run.
type RawResult struct {
	Processes     []RawRecord `json:"processes"`
	Network       []RawRecord `json:"network"`
	Modules       []RawRecord `json:"modules"`
	MemoryRegions []RawRecord `json:"memory_regions"`
	Artifacts     []RawRecord `json:"artifacts"`
}

// Get returns the records stored under c.
func (r *RawResult) Get(c Category) []RawRecord {
	switch c {
	case CategoryProcesses:
		return r.Processes
	case CategoryNetwork:
		return r.Network
	case CategoryModules:
		return r.Modules
	case CategoryRegions:
		return r.MemoryRegions
	case CategoryArtifacts:
		return r.Artifacts
	}
	return nil
}

// Set replaces the records stored under c.
func (r *RawResult) Set(c Category, recs []RawRecord) {
	switch c {
	case CategoryProcesses:
		r.Processes = recs
	case CategoryNetwork:
		r.Network = recs
	case CategoryModules:
		r.Modules = recs
	case CategoryRegions:
		r.MemoryRegions = recs
	case CategoryArtifacts:
		r.Artifacts = recs
	}
}

// IsEmpty reports whether every category is empty. An empty result is what
// an engine returns when it could not extract anything from the image.
func (r *RawResult) IsEmpty() bool {
	for _, c := range Categories {
		if len(r.Get(c)) > 0 {
			return false
		}
	}
	return true
}

// Count returns the total number of records across all categories.
func (r *RawResult) Count() int {
	n := 0
	for _, c := range Categories {
		n += len(r.Get(c))
	}
	return n
}
