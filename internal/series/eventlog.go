package series

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/silolab/avalanche/internal/avalanche"
)

const eventPrefix = "Avalancha"

// EventLog is the parsed content of a simulator avalanche_data.csv
type EventLog struct {
	Events []avalanche.Event
	// Malformed counts Avalancha lines that could not be parsed
	Malformed int
}

// LoadEventLog reads lines of the form
//
//	Avalancha <id>,<start>,<end>,<duration>,<particles>
//
// Blank lines, comments (#) and separators (===) are ignored, as is any other
// line that does not start with "Avalancha".
func LoadEventLog(r io.Reader) (*EventLog, error) {
	log := &EventLog{Events: []avalanche.Event{}}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "===") {
			continue
		}
		if !strings.HasPrefix(line, eventPrefix) {
			continue
		}

		e, err := parseEventLine(line)
		if err != nil {
			log.Malformed++
			continue
		}
		log.Events = append(log.Events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, &FormatError{Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	return log, nil
}

func parseEventLine(line string) (avalanche.Event, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 5 {
		return avalanche.Event{}, fmt.Errorf("expected 5 fields, got %d", len(parts))
	}

	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return avalanche.Event{}, err
		}
		vals[i] = v
	}
	if vals[3] < 0 {
		return avalanche.Event{}, fmt.Errorf("negative particle count %v", vals[3])
	}

	return avalanche.Event{
		StartTime:  vals[0],
		EndTime:    vals[1],
		Duration:   vals[2],
		Size:       int(vals[3]),
		StartIndex: -1,
		EndIndex:   -1,
	}, nil
}

// LoadEventLogFile opens path (optionally compressed) and loads it with LoadEventLog
func LoadEventLogFile(path string) (*EventLog, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	log, err := LoadEventLog(rc)
	return log, withPath(err, path)
}
