package report

// Report is the top-level output of a convert run.
type Report struct {
	Version     int        `json:"version" yaml:"version"`
	GeneratedAt string     `json:"generated_at" yaml:"generated_at"`
	Preset      string     `json:"preset" yaml:"preset"`
	Format      string     `json:"format" yaml:"format"`
	Quality     int        `json:"quality" yaml:"quality"` // percent
	BasePath    string     `json:"base_path" yaml:"base_path"`
	BuildInfo   *BuildInfo `json:"build_info,omitempty" yaml:"build_info,omitempty"`
	Entries     []Entry    `json:"entries" yaml:"entries"`
	Stats       Stats      `json:"stats" yaml:"stats"`
}

// BuildInfo captures run-time parameters for diagnostics.
type BuildInfo struct {
	Workers        int    `json:"workers" yaml:"workers"`
	Encoders       string `json:"encoders" yaml:"encoders"`
	DurationMS     int64  `json:"duration_ms" yaml:"duration_ms"`
	ArchiveEntries int    `json:"archive_entries,omitempty" yaml:"archive_entries,omitempty"`
}

// Entry describes one input file and what became of it.
type Entry struct {
	Source SourceInfo `json:"source" yaml:"source"`
	Status string     `json:"status" yaml:"status"`
	Output *Output    `json:"output,omitempty" yaml:"output,omitempty"`
	Error  *Failure   `json:"error,omitempty" yaml:"error,omitempty"`
}

// SourceInfo holds metadata about the input file.
type SourceInfo struct {
	Name   string `json:"name" yaml:"name"`
	MIME   string `json:"mime" yaml:"mime"`
	Size   int64  `json:"size" yaml:"size"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height int    `json:"height,omitempty" yaml:"height,omitempty"`
}

// Output is the converted file written for an entry.
type Output struct {
	Format string `json:"format" yaml:"format"`
	MIME   string `json:"mime" yaml:"mime"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Size   int64  `json:"size" yaml:"size"` // bytes on disk
	Hash   string `json:"hash" yaml:"hash"` // 16 hex chars of xxhash64
	Path   string `json:"path" yaml:"path"` // relative to base_path
}

// Failure records why an entry was not converted.
type Failure struct {
	Kind   string `json:"kind" yaml:"kind"`
	Reason string `json:"reason" yaml:"reason"`
}

// Stats aggregates run metrics.
type Stats struct {
	TotalInputBytes  int64          `json:"total_input_bytes" yaml:"total_input_bytes"`
	TotalOutputBytes int64          `json:"total_output_bytes" yaml:"total_output_bytes"`
	TotalEntries     int            `json:"total_entries" yaml:"total_entries"`
	Converted        int            `json:"converted" yaml:"converted"`
	Failed           int            `json:"failed" yaml:"failed"`
	Rejected         int            `json:"rejected,omitempty" yaml:"rejected,omitempty"` // refused for capacity
	ByFailure        map[string]int `json:"by_failure,omitempty" yaml:"by_failure,omitempty"`
}

// SupportedVersion is the current schema version.
const SupportedVersion = 1

const (
	StatusConverted = "converted"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// DefaultName is the report file name, without extension, written into the
// output directory when no explicit path is given.
const DefaultName = "imgconv.report"
