package collection

import (
	"github.com/AnyUserName/imgconv/internal/engine"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/google/uuid"
)

// ID identifies a record for its whole lifetime. IDs are never reused.
type ID = uuid.UUID

// Status is the lifecycle state of a record.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusConverting
	StatusConverted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusConverting:
		return "converting"
	case StatusConverted:
		return "converted"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// File is one acquired input: name, declared size and MIME type, raw bytes.
type File struct {
	Name string
	Size int64
	MIME string
	Data []byte
}

// record is the mutable state behind a RecordView. Guarded by Collection.mu.
type record struct {
	id   ID
	name string
	size int64
	mime string

	bitmap  *engine.Bitmap   // nil while loading or after a decode failure
	status  Status
	result  *engine.Artifact // non-nil iff status == StatusConverted
	failure error            // non-nil iff status == StatusFailed
}

// convertible reports whether the record has pixels and is not busy.
func (r *record) convertible() bool {
	return r.bitmap != nil && r.status != StatusLoading && r.status != StatusConverting
}

// dropResult releases the current artifact, if any.
func (r *record) dropResult() {
	if r.result != nil {
		r.result.Release()
		r.result = nil
	}
}

// release frees every handle the record owns.
func (r *record) release() {
	r.dropResult()
	if r.bitmap != nil {
		r.bitmap.Release()
		r.bitmap = nil
	}
}

// ResultInfo describes a converted record's artifact.
type ResultInfo struct {
	Format   format.Format
	MIME     string
	Width    int
	Height   int
	Size     int
	Hash     string
	FileName string
}

// RecordView is an immutable snapshot of a record for presenters.
type RecordView struct {
	ID         ID
	Index      int // display position, changes when earlier records are removed
	SourceName string
	SourceSize int64
	SourceMIME string
	Width      int // zero until decoded
	Height     int
	Status     Status
	Result     *ResultInfo // non-nil iff Status == StatusConverted

	FailureReason string
	FailureKind   engine.Kind
}

func (r *record) view(index int) RecordView {
	v := RecordView{
		ID:         r.id,
		Index:      index,
		SourceName: r.name,
		SourceSize: r.size,
		SourceMIME: r.mime,
		Status:     r.status,
	}
	if r.bitmap != nil {
		v.Width, v.Height = r.bitmap.Width(), r.bitmap.Height()
	}
	if r.status == StatusConverted && r.result != nil {
		v.Result = &ResultInfo{
			Format:   r.result.Format(),
			MIME:     r.result.MIME(),
			Width:    r.result.Width(),
			Height:   r.result.Height(),
			Size:     r.result.Size(),
			Hash:     r.result.Hash(),
			FileName: format.SuggestedFileName(r.name, r.result.Format()),
		}
	}
	if r.failure != nil {
		v.FailureReason = r.failure.Error()
		v.FailureKind, _ = engine.KindOf(r.failure)
	}
	return v
}
