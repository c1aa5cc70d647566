package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/constants"
	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/internal/series"
)

// ErrNoSimDirs is returned when a combine pattern matches no directory
var ErrNoSimDirs = errors.New("pipeline: no simulation directories match")

// LoadNominalRun reads the parameters and event log of one simulation
// directory named sim_<N>_chi.._outlet..
func LoadNominalRun(dir string) (aggregate.NominalRun, error) {
	params, err := aggregate.ParseSimParams(filepath.Base(filepath.Clean(dir)))
	if err != nil {
		return aggregate.NominalRun{}, err
	}

	el, err := series.LoadEventLogFile(filepath.Join(dir, constants.AvalancheDataFile))
	if err != nil {
		return aggregate.NominalRun{}, err
	}
	if el.Malformed > 0 {
		log.Warnf("%s: %d malformed event lines ignored", dir, el.Malformed)
	}

	return aggregate.NominalRun{ID: dir, Params: params, Events: el.Events}, nil
}

// CombineResult is a combination together with the directories left out
type CombineResult struct {
	*aggregate.Combination
	Dirs    []string
	Skipped []aggregate.SkippedRun
}

// CombineDirs combines every simulation directory matching pattern.
// Directories whose name or event log cannot be read are skipped.
func CombineDirs(ctx context.Context, pattern string) (*CombineResult, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern matching failed: %w", err)
	}

	var dirs []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs = append(dirs, m)
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSimDirs, pattern)
	}
	sort.Strings(dirs)

	res := &CombineResult{Dirs: dirs}
	var runs []aggregate.NominalRun
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, err := LoadNominalRun(dir)
		if err != nil {
			log.Warnf("skipping %s: %v", dir, err)
			res.Skipped = append(res.Skipped, aggregate.SkippedRun{ID: dir, Err: err})
			continue
		}
		runs = append(runs, run)
	}

	c, err := aggregate.Combine(runs)
	if err != nil {
		return nil, err
	}
	for _, w := range c.Warnings {
		log.Warnf("%v", w)
	}
	res.Combination = c
	return res, nil
}
