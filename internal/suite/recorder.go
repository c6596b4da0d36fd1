package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/fixture"
)

// ResultsFile is the name of the per-run results document.
const ResultsFile = "results.json"

// Result is the outcome of one scenario.
type Result struct {
	Name          string    `json:"name"`
	Passed        bool      `json:"passed"`
	Error         string    `json:"error,omitempty"`
	Started       time.Time `json:"started"`
	DurationMS    int64     `json:"durationMs"`
	Credential    string    `json:"credential,omitempty"`
	Screenshot    string    `json:"screenshot,omitempty"`
	CleanupErrors []string  `json:"cleanupErrors,omitempty"`
}

// Recorder collects scenario results for one run and keeps
// <dir>/<run id>/results.json current after every scenario, so a run that
// dies halfway still leaves its results behind.
type Recorder struct {
	dir    string
	runID  string
	logger *zap.Logger

	mu      sync.Mutex
	results []Result
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) RecorderOption {
	return func(r *Recorder) { r.runID = id }
}

// NewRecorder creates the run directory under resultsDir.
func NewRecorder(resultsDir string, opts ...RecorderOption) (*Recorder, error) {
	r := &Recorder{runID: fixture.RunID(), logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	r.dir = filepath.Join(resultsDir, r.runID)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}
	return r, nil
}

// RunID returns the id of this run.
func (r *Recorder) RunID() string { return r.runID }

// Dir returns the directory results are written to.
func (r *Recorder) Dir() string { return r.dir }

// Record appends res and rewrites the results file.
func (r *Recorder) Record(res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)

	r.logger.Info("scenario finished",
		zap.String("run", r.runID),
		zap.String("scenario", res.Name),
		zap.Bool("passed", res.Passed),
		zap.Duration("duration", time.Duration(res.DurationMS)*time.Millisecond),
		zap.Int("cleanup_errors", len(res.CleanupErrors)))

	data, err := json.MarshalIndent(r.results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return writeAtomic(filepath.Join(r.dir, ResultsFile), append(data, '\n'))
}

// Results returns a copy of everything recorded so far.
func (r *Recorder) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

// Summary counts passed and failed scenarios.
func (r *Recorder) Summary() (passed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SaveScreenshot writes png for scenario name and returns its path.
func (r *Recorder) SaveScreenshot(name string, png []byte) (string, error) {
	path := filepath.Join(r.dir, unsafeChars.ReplaceAllString(name, "-")+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	return path, nil
}

// ReadResults loads a results file written by a Recorder.
func ReadResults(path string) ([]Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Result
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return out, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".results-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
