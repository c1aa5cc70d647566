// Package aggregate merges per-run avalanche sizes into parameter groups and
// summarizes them.
package aggregate

import (
	"database/sql"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	chiPattern    = regexp.MustCompile(`(?i)chi(\d+(?:\.\d+)?)`)
	outletPattern = regexp.MustCompile(`(?i)outlet(\d+(?:\.\d+)?)`)
)

// GroupKey identifies the parameter bucket of a run. A component that is not
// Valid was not present in the run's name.
type GroupKey struct {
	Chi    sql.NullFloat64
	Outlet sql.NullFloat64
}

// NewGroupKey builds a key with both components present
func NewGroupKey(chi, outlet float64) GroupKey {
	return GroupKey{
		Chi:    sql.NullFloat64{Float64: chi, Valid: true},
		Outlet: sql.NullFloat64{Float64: outlet, Valid: true},
	}
}

// ParseGroupKey extracts chi<num> and outlet<num> from anywhere in name,
// case-insensitively. The first match of each wins.
func ParseGroupKey(name string) GroupKey {
	var key GroupKey
	if m := chiPattern.FindStringSubmatch(name); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			key.Chi = sql.NullFloat64{Float64: v, Valid: true}
		}
	}
	if m := outletPattern.FindStringSubmatch(name); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			key.Outlet = sql.NullFloat64{Float64: v, Valid: true}
		}
	}
	return key
}

// Tag renders the key as it appears in output file names, e.g.
// "_chi0.2_outlet0.52". Missing components are left out.
func (k GroupKey) Tag() string {
	var b strings.Builder
	if k.Chi.Valid {
		b.WriteString("_chi")
		b.WriteString(FormatParam(k.Chi.Float64))
	}
	if k.Outlet.Valid {
		b.WriteString("_outlet")
		b.WriteString(FormatParam(k.Outlet.Float64))
	}
	return b.String()
}

// String renders the key as "chi0.2_outlet0.52", or "none" when no component
// is present. ParseGroupKey(k.String()) == k.
func (k GroupKey) String() string {
	tag := k.Tag()
	if tag == "" {
		return "none"
	}
	return tag[1:]
}

// Less orders keys by chi then outlet; missing components sort first
func (k GroupKey) Less(other GroupKey) bool {
	if c := compareNull(k.Chi, other.Chi); c != 0 {
		return c < 0
	}
	return compareNull(k.Outlet, other.Outlet) < 0
}

// MarshalJSON renders missing components as null
func (k GroupKey) MarshalJSON() ([]byte, error) {
	out := struct {
		Key    string   `json:"key"`
		Chi    *float64 `json:"chi"`
		Outlet *float64 `json:"outlet"`
	}{Key: k.String()}
	if k.Chi.Valid {
		out.Chi = &k.Chi.Float64
	}
	if k.Outlet.Valid {
		out.Outlet = &k.Outlet.Float64
	}
	return json.Marshal(out)
}

func compareNull(a, b sql.NullFloat64) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	case a.Float64 < b.Float64:
		return -1
	case a.Float64 > b.Float64:
		return 1
	}
	return 0
}

// FormatParam formats a parameter the way the simulation tooling names its
// files: shortest representation, always with a decimal point ("3.0", "0.52").
func FormatParam(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
