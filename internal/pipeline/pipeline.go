// Package pipeline drives a collection over an arbitrary number of input
// files. Files are fed in windows of the collection's capacity; each window
// is decoded, converted, written out and then cleared.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/AnyUserName/imgconv/internal/archive"
	"github.com/AnyUserName/imgconv/internal/collection"
	"github.com/AnyUserName/imgconv/internal/engine"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/AnyUserName/imgconv/internal/input"
	"github.com/AnyUserName/imgconv/internal/report"
	"github.com/sirupsen/logrus"
)

// ErrAllFailed is returned when not a single input converted.
var ErrAllFailed = errors.New("no image converted")

// Config holds all parameters for a pipeline run.
type Config struct {
	Inputs    []string
	OutputDir string
	Archive   string // optional zip path
	Preset    string
	Settings  collection.Settings
	Suggest   bool // pick the target from the source when a single file is given
	Workers   int
	Log       *logrus.Entry
	Observer  collection.Observer
	Encoders  string // registry description for the report
}

// Pipeline orchestrates a convert run.
type Pipeline struct {
	cfg    Config
	engine *engine.Engine
	load   func(input.Source) (collection.File, error)
}

// run is the state of one Run call.
type run struct {
	col    *collection.Collection
	rep    *report.Report
	out    *outputs
	zw     *archive.Writer
	loaded map[string]collection.File // read ahead of their window, by path
}

// New creates a configured pipeline around e.
func New(cfg Config, e *engine.Engine) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Log = logrus.NewEntry(l)
	}
	if cfg.Observer == nil {
		cfg.Observer = collection.NopObserver{}
	}
	return &Pipeline{cfg: cfg, engine: e, load: input.Load}
}

// Run executes the full pipeline and returns the report. Partial failures
// are recorded in the report; Run fails only if nothing converted.
func (p *Pipeline) Run(ctx context.Context) (*report.Report, error) {
	start := time.Now()
	log := p.cfg.Log

	// Step 1: Scan for images.
	sources, err := input.Scan(p.cfg.Inputs...)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no images found in %v", p.cfg.Inputs)
	}
	log.WithField("count", len(sources)).Info("found images")

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	st := &run{loaded: map[string]collection.File{}}
	settings := p.cfg.Settings
	if p.cfg.Suggest && len(sources) == 1 {
		if f, err := p.load(sources[0]); err == nil {
			settings.Format = format.SuggestTarget(f.MIME)
			st.loaded[sources[0].Path] = f
			log.WithField("format", settings.Format).Debug("target suggested from source type")
		}
	}

	if p.cfg.Archive != "" {
		if st.zw, err = archive.Create(p.cfg.Archive); err != nil {
			return nil, err
		}
		defer st.zw.Close()
	}

	st.col = collection.New(p.engine,
		collection.WithLogger(log),
		collection.WithObserver(p.cfg.Observer),
		collection.WithWorkers(p.cfg.Workers),
		collection.WithSettings(settings),
	)
	st.rep = report.New(p.cfg.Preset, settings)
	st.out = newOutputs(p.cfg.OutputDir)
	rep := st.rep

	// Step 2: Process windows.
	for lo := 0; lo < len(sources); lo += collection.Capacity {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+collection.Capacity, len(sources))
		if err := p.window(ctx, st, sources[lo:hi]); err != nil {
			return nil, err
		}
		st.col.Reset()
		if err := st.col.UpdateSettings(settings); err != nil {
			return nil, err
		}
	}

	// Step 3: Finish.
	rep.BuildInfo = &report.BuildInfo{
		Workers:    p.cfg.Workers,
		Encoders:   p.cfg.Encoders,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if st.zw != nil {
		if err := st.zw.Close(); err != nil {
			return nil, fmt.Errorf("close archive: %w", err)
		}
		rep.BuildInfo.ArchiveEntries = st.zw.Len()
		log.WithFields(logrus.Fields{"path": p.cfg.Archive, "entries": st.zw.Len()}).Info("archive written")
	}
	rep.ComputeStats()

	if rep.Stats.Converted == 0 {
		return rep, fmt.Errorf("%w: all %d images failed", ErrAllFailed, len(sources))
	}
	if n := rep.Stats.Failed + rep.Stats.Rejected; n > 0 {
		log.Warnf("%d of %d images had errors", n, len(sources))
	}
	return rep, nil
}

func (p *Pipeline) window(ctx context.Context, st *run, sources []input.Source) error {
	for _, s := range sources {
		f, err := p.fetch(st, s)
		if err != nil {
			p.cfg.Log.WithError(err).Warn("skipping unreadable file")
			st.rep.Reject(s.RelPath, s.Size, err)
			continue
		}
		if _, err := st.col.Add(ctx, f); err != nil {
			p.cfg.Log.WithField("file", f.Name).WithError(err).Warn("file rejected")
			st.rep.Reject(f.Name, f.Size, err)
		}
	}
	st.col.Wait()
	st.col.ConvertAll()
	st.col.Wait()

	paths := map[collection.ID]string{}
	for _, d := range st.col.Downloads() {
		d.FileName = st.out.claim(d.FileName, d.Hash)
		if err := st.out.write(d); err != nil {
			return err
		}
		if st.zw != nil {
			if err := st.zw.Add(d); err != nil {
				return err
			}
		}
		paths[d.RecordID] = d.FileName
	}
	for _, v := range st.col.Records() {
		st.rep.Add(v, paths[v.ID])
	}
	return nil
}

// fetch returns a file read ahead of time, or reads it now.
func (p *Pipeline) fetch(st *run, s input.Source) (collection.File, error) {
	if f, ok := st.loaded[s.Path]; ok {
		delete(st.loaded, s.Path)
		return f, nil
	}
	return p.load(s)
}
