package distribution

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_EmptyInput(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = BuildSizes([]int{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestBuild_SingleValue(t *testing.T) {
	table, err := BuildSizes([]int{42})
	require.NoError(t, err)

	assert.Equal(t, StrategySingle, table.Strategy)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, Row{Center: 42, Width: 1, Count: 1, Probability: 1, Density: 1}, table.Rows[0])
}

func TestBuild_IdenticalValues(t *testing.T) {
	table, err := BuildSizes([]int{5, 5, 5, 5})
	require.NoError(t, err)

	assert.Equal(t, StrategyExactCenter, table.Strategy)
	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, 5.0, row.Center)
	assert.Equal(t, 1.0, row.Width)
	assert.Equal(t, 4, row.Count)
	assert.Equal(t, 1.0, row.Probability)
}

func TestBuild_ExactCenterBins(t *testing.T) {
	table, err := BuildSizes([]int{1, 1, 2, 4, 4, 4})
	require.NoError(t, err)

	assert.Equal(t, StrategyExactCenter, table.Strategy)
	assert.Equal(t, []float64{0.5, 1.5, 3, 4.5}, table.Edges)
	require.Len(t, table.Rows, 3)

	assert.Equal(t, 1.0, table.Rows[0].Center)
	assert.Equal(t, 2, table.Rows[0].Count)
	assert.Equal(t, 2.25, table.Rows[1].Center)
	assert.Equal(t, 1.5, table.Rows[1].Width)
	assert.Equal(t, 1, table.Rows[1].Count)
	assert.Equal(t, 3.75, table.Rows[2].Center)
	assert.Equal(t, 3, table.Rows[2].Count)
}

func TestBuild_ExactCenterAppliesToLargeSamples(t *testing.T) {
	sizes := make([]int, 0, 300)
	for i := 0; i < 100; i++ {
		sizes = append(sizes, 1, 2, 300)
	}
	table, err := BuildSizes(sizes)
	require.NoError(t, err)
	assert.Equal(t, StrategyExactCenter, table.Strategy)
	assert.Len(t, table.Rows, 3)
}

func TestBuild_SmallSampleLinear(t *testing.T) {
	table, err := BuildSizes([]int{1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)

	assert.Equal(t, StrategySmallLinear, table.Strategy)
	require.Len(t, table.Edges, 8)
	assert.Equal(t, 0.5, table.Edges[0])
	assert.Equal(t, 7.5, table.Edges[7])
	assert.Equal(t, 7, table.TotalCount())
}

func TestBuild_SmallSampleBoundary(t *testing.T) {
	nine := []int{10, 11, 12, 13, 14, 15, 16, 17, 18}
	table, err := BuildSizes(nine)
	require.NoError(t, err)
	assert.Equal(t, StrategySmallLinear, table.Strategy)
	assert.Len(t, table.Edges, SmallSampleMaxBins+1)

	ten := append(nine, 19)
	table, err = BuildSizes(ten)
	require.NoError(t, err)
	assert.Equal(t, StrategyLinear, table.Strategy, "ten values leave the small-sample rule")
	assert.Len(t, table.Edges, 4)
	assert.Equal(t, 10, table.TotalCount())
}

func TestBuild_LogBins(t *testing.T) {
	sizes := []int{1, 2, 4, 8, 16, 32, 64, 128, 256, 512}
	table, err := BuildSizes(sizes)
	require.NoError(t, err)

	assert.Equal(t, StrategyLog, table.Strategy)
	assert.Len(t, table.Edges, 4, "round(sqrt(10)) = 3 bins")
	assert.Equal(t, 1.0, table.Edges[0])
	assert.Equal(t, 512.0, table.Edges[3])
	assert.Equal(t, 10, table.TotalCount())
	assert.InDelta(t, 1.0, table.TotalProbability(), 1e-9)
}

func TestBuild_LogBinsFloorAtOne(t *testing.T) {
	sizes := []int{0, 0, 1, 3, 9, 27, 81, 243, 729, 2187, 6561}
	table, err := BuildSizes(sizes)
	require.NoError(t, err)

	assert.Equal(t, StrategyLog, table.Strategy)
	assert.Equal(t, 1.0, table.Edges[0])
	assert.Equal(t, len(sizes), table.TotalCount(), "values below the floor are kept in the first bin")
}

func TestBuild_LinearBins(t *testing.T) {
	sizes := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		sizes = append(sizes, 100+i)
	}
	table, err := BuildSizes(sizes)
	require.NoError(t, err)

	assert.Equal(t, StrategyLinear, table.Strategy)
	assert.Len(t, table.Edges, 11)
	assert.Equal(t, 100.0, table.Edges[0])
	assert.Equal(t, 199.0, table.Edges[10])
	assert.Equal(t, 100, table.TotalCount())
}

func TestBuild_LinearBinCap(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	values := make([]float64, 5000)
	for i := range values {
		values[i] = 50 + rng.Float64()*400
	}
	table, err := Build(values)
	require.NoError(t, err)
	assert.Equal(t, StrategyLinear, table.Strategy)
	assert.Len(t, table.Edges, MaxLinearBins+1)
}

func TestBuild_DegenerateLogRange(t *testing.T) {
	values := []float64{0, 0.01, 0.02, 0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 0.95}
	table, err := Build(values)
	require.NoError(t, err)

	assert.ErrorIs(t, table.Warning, ErrDegenerateRange)
	assert.Equal(t, StrategyExactCenter, table.Strategy)
	assert.Equal(t, len(values), table.TotalCount())
}

func TestBuild_Normalization(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(400)
		sizes := make([]int, n)
		for i := range sizes {
			sizes[i] = int(math.Exp(rng.Float64() * 8))
		}

		table, err := BuildSizes(sizes)
		require.NoError(t, err)

		assert.Equal(t, n, table.TotalCount())
		assert.InDelta(t, 1.0, table.TotalProbability(), 1e-9)

		integral := 0.0
		for i, row := range table.Rows {
			assert.Greater(t, row.Count, 0)
			integral += row.Density * row.Width
			if i > 0 {
				assert.Greater(t, row.Center, table.Rows[i-1].Center)
			}
		}
		assert.InDelta(t, 1.0, integral, 1e-9)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	sizes := []int{3, 17, 1, 250, 9, 9, 44, 1200, 6, 2, 31, 87}
	first, err := BuildSizes(sizes)
	require.NoError(t, err)
	second, err := BuildSizes(sizes)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuild_DoesNotModifyInput(t *testing.T) {
	values := []float64{9, 1, 5, 3, 7, 2, 8}
	_, err := Build(values)
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 1, 5, 3, 7, 2, 8}, values)
}

func TestFixedWidth(t *testing.T) {
	table, err := FixedWidth([]float64{10, 150, 250, 420}, 200)
	require.NoError(t, err)

	assert.Equal(t, StrategyFixedWidth, table.Strategy)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []float64{100, 300, 500}, []float64{table.Rows[0].Center, table.Rows[1].Center, table.Rows[2].Center})
	assert.Equal(t, []int{2, 1, 1}, []int{table.Rows[0].Count, table.Rows[1].Count, table.Rows[2].Count})
	assert.InDelta(t, 2.0/(4*200), table.Rows[0].Density, 1e-12)
}

func TestFixedWidth_KeepsEmptyBins(t *testing.T) {
	table, err := FixedWidth([]float64{1, 999}, 200)
	require.NoError(t, err)
	require.Len(t, table.Rows, 5)
	assert.Equal(t, 0, table.Rows[2].Count)
}

func TestFixedWidth_Errors(t *testing.T) {
	_, err := FixedWidth(nil, 200)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = FixedWidth([]float64{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidBinWidth)
}

func TestBinIndex(t *testing.T) {
	edges := []float64{1, 8, 64, 512}
	tests := []struct {
		v    float64
		want int
	}{
		{0, 0},
		{1, 0},
		{7.99, 0},
		{8, 1},
		{63, 1},
		{64, 2},
		{512, 2},
		{600, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, binIndex(edges, tt.v), "value %v", tt.v)
	}
}
