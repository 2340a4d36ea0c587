// Package discover finds trace files in a capture tree laid out as
// <ue>_<...>_<procedure>_<variant>/<ue|variant>_<nf>[_capture].<ext>.
package discover

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/log"
	"firestige.xyz/proclat/internal/source"
)

var (
	runDirPattern = regexp.MustCompile(`(?i)(\d+)_.*_(ue_reg_pdu|ue_reg|ue_dereg|pdu_est|pdu_rel)_(aether|open5gs|free5gc)`)
	filePattern   = regexp.MustCompile(`(?i)^(\d+|open5gs|free5gc|aether)_([a-z0-9\-]+?)(?:_capture)?(\.[a-z]+)(\.gz|\.zst)?$`)
)

// Job is one trace file and the measurement context it belongs to.
type Job struct {
	Path      string
	RunDir    string // Directory whose name carried the run context
	Function  string
	Variant   string
	Procedure core.ProcedureKind
	UECount   int
	Format    string
}

// Key orders jobs and labels them in logs and manifests.
func (j Job) Key() string {
	return fmt.Sprintf("%s/%s/%s/%d/%s", j.Variant, j.Procedure, j.Function, j.UECount, j.Path)
}

// RunContext holds what a run directory name encodes.
type RunContext struct {
	UECount   int
	Procedure core.ProcedureKind
	Variant   string
}

// ParseRunDir extracts the run context from the nearest directory of path
// whose name matches the layout.
func ParseRunDir(path string) (RunContext, bool) {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if rc, ok := parseRunName(parts[i]); ok {
			return rc, true
		}
	}
	return RunContext{}, false
}

func parseRunName(name string) (RunContext, bool) {
	m := runDirPattern.FindStringSubmatch(name)
	if m == nil {
		return RunContext{}, false
	}
	ue, err := strconv.Atoi(m[1])
	if err != nil {
		return RunContext{}, false
	}
	proc, err := core.ParseProcedure(m[2])
	if err != nil {
		return RunContext{}, false
	}
	return RunContext{UECount: ue, Procedure: proc, Variant: strings.ToLower(m[3])}, true
}

// ParseFileName extracts the network function and format of a trace file.
func ParseFileName(name string) (function, format string, ok bool) {
	m := filePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	format, err := source.FormatFor(name)
	if err != nil {
		return "", "", false
	}
	return strings.ToLower(m[2]), format, true
}

// Walk returns every recognized trace under root, sorted by path. Files of a
// known trace format that do not fit the layout are logged and skipped;
// other files are ignored silently.
func Walk(root string) ([]Job, error) {
	logger := log.GetLogger()

	var jobs []Job
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ferr := source.FormatFor(path); ferr != nil {
			return nil
		}

		dir := filepath.Dir(path)
		run, runOK := ParseRunDir(dir)
		function, format, fileOK := ParseFileName(d.Name())
		if !runOK || !fileOK {
			logger.WithField("path", path).Warn("skipping unrecognized trace file")
			return nil
		}

		jobs = append(jobs, Job{
			Path:      path,
			RunDir:    dir,
			Function:  function,
			Variant:   run.Variant,
			Procedure: run.Procedure,
			UECount:   run.UECount,
			Format:    format,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Path < jobs[j].Path })
	return jobs, nil
}
