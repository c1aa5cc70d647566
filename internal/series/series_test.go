package series

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/silolab/avalanche/internal/avalanche"
)

func TestLoadFlow_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"comma", "Time,NoPTotal,NoPOriginalTotal\n0,0,0\n1,1,1\n2,3,4\n"},
		{"semicolon", "Time;NoPTotal;NoPOriginalTotal\n0;0;0\n1;1;1\n2;3;4\n"},
		{"tab", "Time\tNoPTotal\tNoPOriginalTotal\n0\t0\t0\n1\t1\t1\n2\t3\t4\n"},
		{"whitespace", "Time   NoPTotal  NoPOriginalTotal\n0 0 0\n1   1 1\n\n2 3 4\n"},
		{"header spacing and case", "time , NOP Total,NoP Original Total\n0,0,0\n1,1,1\n2,3,4\n"},
	}

	want := []avalanche.Sample{
		{Time: 0, Count: 0, OriginalCount: 0},
		{Time: 1, Count: 1, OriginalCount: 1},
		{Time: 2, Count: 3, OriginalCount: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := LoadFlow(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, want, samples)
		})
	}
}

func TestLoadFlow_ExtraColumnsAndOrder(t *testing.T) {
	input := "Step,NoPOriginalTotal,Time,NoPTotal,Rate\n" +
		"3,4,2,3,0.1\n" +
		"1,0,0,0,0.0\n" +
		"2,1,1,1,0.2\n"
	samples, err := LoadFlow(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, []float64{0, 1, 2}, []float64{samples[0].Time, samples[1].Time, samples[2].Time})
	assert.Equal(t, 4.0, samples[2].OriginalCount)
}

func TestLoadFlow_DropsBadRows(t *testing.T) {
	input := "Time,NoPTotal,NoPOriginalTotal\n" +
		"0,0,0\n" +
		"x,1,1\n" +
		"1,NaN,1\n" +
		"2,Inf,1\n" +
		"3,1\n" +
		"4,2,2\n"
	samples, err := LoadFlow(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestLoadFlow_DropsUnparsableRows(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bare quote", "Time,NoPTotal,NoPOriginalTotal\n0,0,0\n1,x\"y,1\n2,3,4\n"},
		{"unterminated quote", "Time,NoPTotal,NoPOriginalTotal\n0,0,0\n1,\"1,1\n2,3,4\n"},
		{"semicolon bare quote", "Time;NoPTotal;NoPOriginalTotal\n0;0;0\n1;x\"y;1\n2;3;4\n"},
		{"crlf line endings", "Time,NoPTotal,NoPOriginalTotal\r\n0,0,0\r\n1,\"1,1\r\n2,3,4\r\n"},
	}

	want := []avalanche.Sample{
		{Time: 0, Count: 0, OriginalCount: 0},
		{Time: 2, Count: 3, OriginalCount: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := LoadFlow(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, want, samples)
		})
	}
}

func TestLoadFlow_StableSort(t *testing.T) {
	input := "Time,NoPTotal,NoPOriginalTotal\n1,5,5\n0,0,0\n1,6,6\n"
	samples, err := LoadFlow(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 5.0, samples[1].Count)
	assert.Equal(t, 6.0, samples[2].Count)
}

func TestLoadFlow_Errors(t *testing.T) {
	_, err := LoadFlow(strings.NewReader("Time,Count\n0,1\n"))
	assert.ErrorIs(t, err, ErrMissingColumns)
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)

	_, err = LoadFlow(strings.NewReader("Time,NoPTotal,NoPOriginalTotal\n"))
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = LoadFlow(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestLoadFlowFile(t *testing.T) {
	dir := t.TempDir()
	content := "Time,NoPTotal,NoPOriginalTotal\n0,0,0\n1,2,2\n"

	plain := filepath.Join(dir, "flow_data.csv")
	require.NoError(t, os.WriteFile(plain, []byte(content), 0o644))

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err := gw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	gzPath := filepath.Join(dir, "flow_data.csv.gz")
	require.NoError(t, os.WriteFile(gzPath, gzBuf.Bytes(), 0o644))

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, err = xw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	xzPath := filepath.Join(dir, "flow_data.csv.xz")
	require.NoError(t, os.WriteFile(xzPath, xzBuf.Bytes(), 0o644))

	for _, path := range []string{plain, gzPath, xzPath} {
		samples, err := LoadFlowFile(path)
		require.NoError(t, err, path)
		assert.Len(t, samples, 2, path)
	}
}

func TestLoadFlowFile_Errors(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "nope.csv")
	_, err := LoadFlowFile(missing)
	assert.ErrorIs(t, err, ErrUnreadable)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, missing, fe.Path)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("a,b\n1,2\n"), 0o644))
	_, err = LoadFlowFile(bad)
	assert.ErrorIs(t, err, ErrMissingColumns)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, bad, fe.Path)
	assert.Contains(t, err.Error(), bad)
}

func TestDetectCompression(t *testing.T) {
	assert.Equal(t, CompressionGzip, DetectCompression([]byte{0x1f, 0x8b, 0x08}))
	assert.Equal(t, CompressionXZ, DetectCompression([]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}))
	assert.Equal(t, CompressionBzip2, DetectCompression([]byte("BZh91")))
	assert.Equal(t, CompressionNone, DetectCompression([]byte("Time")))
	assert.Equal(t, "xz", CompressionXZ.String())
}

func TestLoadEventLog(t *testing.T) {
	input := `# avalanche log
=== run 1 ===

Avalancha 1,0.5,2.0,1.5,12
Avalancha 2, 10.0, 13.5, 3.5, 7.0
Avalancha 3,oops,1,1,1
Avalancha 4,1,2
Avalancha 5,20,21,1,-3
Total avalanches: 2
`
	log, err := LoadEventLog(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, log.Events, 2)
	assert.Equal(t, 3, log.Malformed)
	assert.Equal(t, avalanche.Event{
		StartTime: 0.5, EndTime: 2.0, Duration: 1.5, Size: 12, StartIndex: -1, EndIndex: -1,
	}, log.Events[0])
	assert.Equal(t, 7, log.Events[1].Size)
	assert.Equal(t, []int{12, 7}, avalanche.Sizes(log.Events))
}

func TestLoadEventLog_Empty(t *testing.T) {
	log, err := LoadEventLog(strings.NewReader("# nothing recorded\n"))
	require.NoError(t, err)
	assert.NotNil(t, log.Events)
	assert.Empty(t, log.Events)
	assert.Zero(t, log.Malformed)
}

func TestLoadEventLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avalanche_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("Avalancha 1,0,1,1,3\n"), 0o644))

	log, err := LoadEventLogFile(path)
	require.NoError(t, err)
	assert.Len(t, log.Events, 1)

	_, err = LoadEventLogFile(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, ErrUnreadable)
}
