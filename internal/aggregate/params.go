package aggregate

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrUnrecognizedName indicates a simulation directory name that does not
// follow the sim_<N>_chi.._outlet.. layout.
var ErrUnrecognizedName = errors.New("aggregate: unrecognized simulation directory name")

var simDirPattern = regexp.MustCompile(
	`^sim_(\d+)_chi([\d.]+)_ratio([\d.]+)_br([\d.]+)_lg(\d+)_sm(\d+)_poly(\d+)_sides(\d+)_outlet([\d.]+)`)

// SimParams is the parameter set encoded in a simulation directory name:
// sim_<particles>_chi<chi>_ratio<ratio>_br<base_radius>_lg<large>_sm<small>_poly<polygons>_sides<sides>_outlet<outlet>
type SimParams struct {
	TotalParticles      int     `json:"total_particles"`
	Chi                 float64 `json:"chi"`
	SizeRatio           float64 `json:"size_ratio"`
	BaseRadius          float64 `json:"base_radius"`
	NumLargeCircles     int     `json:"num_large_circles"`
	NumSmallCircles     int     `json:"num_small_circles"`
	NumPolygonParticles int     `json:"num_polygon_particles"`
	NumSides            int     `json:"num_sides"`
	OutletWidth         float64 `json:"outlet_width"`
}

// ParseSimParams parses a simulation directory base name
func ParseSimParams(dirname string) (SimParams, error) {
	m := simDirPattern.FindStringSubmatch(dirname)
	if m == nil {
		return SimParams{}, fmt.Errorf("%w: %q", ErrUnrecognizedName, dirname)
	}

	var p SimParams
	var err error
	ints := []struct {
		dst *int
		src string
	}{
		{&p.TotalParticles, m[1]},
		{&p.NumLargeCircles, m[5]},
		{&p.NumSmallCircles, m[6]},
		{&p.NumPolygonParticles, m[7]},
		{&p.NumSides, m[8]},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(f.src); err != nil {
			return SimParams{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedName, dirname, err)
		}
	}

	fls := []struct {
		dst *float64
		src string
	}{
		{&p.Chi, m[2]},
		{&p.SizeRatio, m[3]},
		{&p.BaseRadius, m[4]},
		{&p.OutletWidth, m[9]},
	}
	for _, f := range fls {
		if *f.dst, err = strconv.ParseFloat(f.src, 64); err != nil {
			return SimParams{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedName, dirname, err)
		}
	}

	return p, nil
}

// OutletRadius assumes a circular outlet
func (p SimParams) OutletRadius() float64 {
	return p.OutletWidth / 2
}

// D is the dimensionless outlet ratio outlet_radius / base_radius
func (p SimParams) D() float64 {
	return p.OutletRadius() / p.BaseRadius
}

// Key returns the group key of the parameter set
func (p SimParams) Key() GroupKey {
	return GroupKey{
		Chi:    sql.NullFloat64{Float64: p.Chi, Valid: true},
		Outlet: sql.NullFloat64{Float64: p.OutletWidth, Valid: true},
	}
}

// fields lists the parameters compared when combining runs
func (p SimParams) fields() []paramField {
	return []paramField{
		{"total_particles", float64(p.TotalParticles)},
		{"chi", p.Chi},
		{"size_ratio", p.SizeRatio},
		{"base_radius", p.BaseRadius},
		{"num_large_circles", float64(p.NumLargeCircles)},
		{"num_small_circles", float64(p.NumSmallCircles)},
		{"num_polygon_particles", float64(p.NumPolygonParticles)},
		{"num_sides", float64(p.NumSides)},
		{"outlet_width", p.OutletWidth},
	}
}

type paramField struct {
	name  string
	value float64
}
