package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AnyUserName/imgconv/internal/collection"
	"gopkg.in/yaml.v3"
)

// New creates an empty report with defaults.
func New(presetName string, s collection.Settings) *Report {
	return &Report{
		Version:     SupportedVersion,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Preset:      presetName,
		Format:      s.Format.String(),
		Quality:     int(s.Quality*100 + 0.5),
		BasePath:    "./",
	}
}

// Add appends an entry for a record. path is where its output was written,
// relative to BasePath; it is ignored unless the record converted.
func (r *Report) Add(v collection.RecordView, path string) {
	e := Entry{
		Source: SourceInfo{
			Name:   v.SourceName,
			MIME:   v.SourceMIME,
			Size:   v.SourceSize,
			Width:  v.Width,
			Height: v.Height,
		},
		Status: v.Status.String(),
	}
	switch {
	case v.Result != nil:
		e.Status = StatusConverted
		e.Output = &Output{
			Format: v.Result.Format.String(),
			MIME:   v.Result.MIME,
			Width:  v.Result.Width,
			Height: v.Result.Height,
			Size:   int64(v.Result.Size),
			Hash:   v.Result.Hash,
			Path:   filepath.ToSlash(path),
		}
	case v.Status == collection.StatusFailed:
		e.Status = StatusFailed
		e.Error = &Failure{Kind: v.FailureKind.String(), Reason: v.FailureReason}
	}
	r.Entries = append(r.Entries, e)
}

// Reject records a file that never entered the collection.
func (r *Report) Reject(name string, size int64, reason error) {
	r.Entries = append(r.Entries, Entry{
		Source: SourceInfo{Name: name, Size: size},
		Status: StatusRejected,
		Error:  &Failure{Kind: "Rejected", Reason: reason.Error()},
	})
}

// ComputeStats recalculates aggregate statistics from entries.
func (r *Report) ComputeStats() {
	var s Stats
	s.TotalEntries = len(r.Entries)
	for _, e := range r.Entries {
		s.TotalInputBytes += e.Source.Size
		switch e.Status {
		case StatusConverted:
			s.Converted++
			if e.Output != nil {
				s.TotalOutputBytes += e.Output.Size
			}
		case StatusRejected:
			s.Rejected++
		case StatusFailed:
			s.Failed++
		}
		if e.Error != nil {
			if s.ByFailure == nil {
				s.ByFailure = map[string]int{}
			}
			s.ByFailure[e.Error.Kind]++
		}
	}
	r.Stats = s
}

// Write serializes the report to path as "json" or "yaml".
func Write(r *Report, path, format string) error {
	r.ComputeStats()

	var (
		data []byte
		err  error
	)
	switch format {
	case "yaml":
		data, err = yaml.Marshal(r)
	case "json", "":
		data, err = json.MarshalIndent(r, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads a report, choosing the decoder by file extension.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Report
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &r)
	default:
		err = json.Unmarshal(data, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	if r.Version != SupportedVersion {
		return nil, fmt.Errorf("report %s: unsupported version %d", path, r.Version)
	}
	return &r, nil
}

// FormatForPath picks "yaml" for .yaml/.yml paths and fallback otherwise.
func FormatForPath(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	}
	return fallback
}
