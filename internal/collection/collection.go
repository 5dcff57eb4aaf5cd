// Package collection holds the bounded set of images being converted and
// drives each one through its lifecycle. Decodes and conversions run on
// their own goroutines; every completion is keyed by record ID and is
// dropped if the record has gone away in the meantime.
package collection

import (
	"bytes"
	"context"
	"image"
	"io"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/AnyUserName/imgconv/internal/engine"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/AnyUserName/imgconv/internal/hasher"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Capacity is the maximum number of records held at once.
const Capacity = 6

// Download is a converted result ready to be saved.
type Download struct {
	RecordID ID
	FileName string
	MIME     string
	Hash     string
	Data     []byte
}

// Collection is safe for concurrent use.
type Collection struct {
	engine   *engine.Engine
	log      *logrus.Entry
	observer Observer
	sem      *semaphore.Weighted
	workers  int64

	mu       sync.Mutex
	records  []*record
	settings Settings
	gen      uint64 // bumped whenever pending conversions become stale
	batch    bool   // a ConvertAll batch has not settled yet
	queue    []event

	emitMu sync.Mutex
	wg     sync.WaitGroup
}

// Option configures a Collection.
type Option func(*Collection)

// WithObserver registers the receiver of lifecycle events.
func WithObserver(o Observer) Option {
	return func(c *Collection) { c.observer = o }
}

// WithLogger sets the log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Collection) { c.log = l }
}

// WithWorkers bounds concurrent decode and encode calls. Defaults to NumCPU.
func WithWorkers(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.workers = int64(n)
		}
	}
}

// WithSettings sets the initial settings. Invalid settings are ignored.
func WithSettings(s Settings) Option {
	return func(c *Collection) {
		if s.Validate() == nil {
			c.settings = s
		}
	}
}

// New creates an empty collection with DefaultSettings.
func New(e *engine.Engine, opts ...Option) *Collection {
	c := &Collection{
		engine:   e,
		observer: NopObserver{},
		workers:  int64(runtime.NumCPU()),
		settings: DefaultSettings(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = logrus.NewEntry(l)
	}
	c.sem = semaphore.NewWeighted(c.workers)
	return c
}

// Add registers f as a Loading record and starts decoding it.
func (c *Collection) Add(ctx context.Context, f File) (ID, error) {
	c.mu.Lock()
	if len(c.records) >= Capacity {
		c.mu.Unlock()
		c.log.WithField("file", f.Name).Warn("collection full, file rejected")
		return uuid.Nil, ErrCapacityExceeded
	}
	rec := &record{
		id:     uuid.New(),
		name:   f.Name,
		size:   f.Size,
		mime:   f.MIME,
		status: StatusLoading,
	}
	c.records = append(c.records, rec)
	c.enqueueLocked(added(rec.view(len(c.records) - 1)))
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"id": rec.id, "file": f.Name, "mime": f.MIME}).Debug("record added")
	go c.decode(context.WithoutCancel(ctx), rec.id, f.Data, f.MIME)
	c.flush()
	return rec.id, nil
}

func (c *Collection) decode(ctx context.Context, id ID, data []byte, mime string) {
	defer c.wg.Done()

	var (
		bmp *engine.Bitmap
		err error
	)
	if err = c.sem.Acquire(ctx, 1); err == nil {
		bmp, err = c.engine.Decode(ctx, data, mime)
		c.sem.Release(1)
	}

	c.mu.Lock()
	idx, rec := c.findLocked(id)
	if rec == nil {
		c.mu.Unlock()
		if bmp != nil {
			bmp.Release()
		}
		c.log.WithField("id", id).Debug("decode finished for removed record, discarded")
		return
	}
	if err != nil {
		rec.status = StatusFailed
		rec.failure = err
		c.log.WithFields(logrus.Fields{"id": id, "file": rec.name}).WithError(err).Warn("decode failed")
	} else {
		rec.bitmap = bmp
		rec.status = StatusReady
	}
	c.enqueueLocked(changed(rec.view(idx)))
	c.settleLocked()
	c.mu.Unlock()
	c.flush()
}

// Remove drops a record and releases everything it owns. Work still in
// flight for it completes but its outcome is discarded.
func (c *Collection) Remove(id ID) error {
	c.mu.Lock()
	idx, rec := c.findLocked(id)
	if rec == nil {
		c.mu.Unlock()
		return ErrNotFound
	}
	c.records = append(c.records[:idx], c.records[idx+1:]...)
	rec.release()
	c.enqueueLocked(removed(id))
	c.settleLocked()
	c.mu.Unlock()
	c.flush()

	c.log.WithFields(logrus.Fields{"id": id, "file": rec.name}).Debug("record removed")
	return nil
}

type job struct {
	id      ID
	bitmap  *engine.Bitmap
	format  format.Format
	quality float64
	gen     uint64
}

// startLocked moves rec to Converting under the current settings.
func (c *Collection) startLocked(idx int, rec *record) job {
	rec.dropResult()
	rec.failure = nil
	rec.status = StatusConverting
	c.enqueueLocked(changed(rec.view(idx)))
	c.wg.Add(1)
	return job{
		id:      rec.id,
		bitmap:  rec.bitmap,
		format:  c.settings.Format,
		quality: c.settings.Quality,
		gen:     c.gen,
	}
}

// ConvertOne converts a single record with the current settings. A record
// that is already converting is left alone. Converted and Failed records
// are converted again.
func (c *Collection) ConvertOne(id ID) error {
	c.mu.Lock()
	idx, rec := c.findLocked(id)
	switch {
	case rec == nil:
		c.mu.Unlock()
		return ErrNotFound
	case rec.status == StatusConverting:
		c.mu.Unlock()
		return nil
	case !rec.convertible():
		c.mu.Unlock()
		return ErrNotReady
	}
	j := c.startLocked(idx, rec)
	c.mu.Unlock()

	go c.convert(j)
	c.flush()
	return nil
}

// ConvertAll starts a conversion for every Ready record and every Failed
// record that still has pixels. Loading, Converting and Converted records
// are left alone. It returns the IDs that were started, in display order.
func (c *Collection) ConvertAll() []ID {
	c.mu.Lock()
	var jobs []job
	for idx, rec := range c.records {
		if rec.bitmap == nil {
			continue
		}
		if rec.status == StatusReady || rec.status == StatusFailed {
			jobs = append(jobs, c.startLocked(idx, rec))
		}
	}
	c.batch = true
	c.settleLocked()
	c.mu.Unlock()

	ids := make([]ID, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.id)
		go c.convert(j)
	}
	c.flush()
	c.log.WithField("count", len(jobs)).Info("batch conversion started")
	return ids
}

func (c *Collection) convert(j job) {
	defer c.wg.Done()

	ctx := context.Background()
	var (
		art *engine.Artifact
		err error
	)
	if err = c.sem.Acquire(ctx, 1); err == nil {
		art, err = c.engine.Convert(ctx, j.bitmap, j.format, j.quality)
		c.sem.Release(1)
	}

	c.mu.Lock()
	idx, rec := c.findLocked(j.id)
	if rec == nil || rec.status != StatusConverting {
		c.mu.Unlock()
		if art != nil {
			art.Release()
		}
		c.log.WithField("id", j.id).Debug("conversion finished for removed record, discarded")
		return
	}

	fields := logrus.Fields{"id": j.id, "file": rec.name, "format": j.format}
	switch {
	case j.gen != c.gen:
		if art != nil {
			art.Release()
		}
		rec.status = StatusReady
		c.log.WithFields(fields).Debug("target format changed during conversion, result dropped")
	case err != nil:
		rec.status = StatusFailed
		rec.failure = err
		c.log.WithFields(fields).WithError(err).Warn("conversion failed")
	default:
		rec.result = art
		rec.status = StatusConverted
		c.log.WithFields(fields).WithField("size", art.Size()).Info("converted")
	}
	c.enqueueLocked(changed(rec.view(idx)))
	c.settleLocked()
	c.mu.Unlock()
	c.flush()
}

// Reset removes every record and restores DefaultSettings.
func (c *Collection) Reset() {
	c.mu.Lock()
	for _, rec := range c.records {
		rec.release()
		c.enqueueLocked(removed(rec.id))
	}
	c.records = nil
	c.settings = DefaultSettings()
	c.gen++
	c.batch = false
	c.enqueueLocked(settingsSet(c.settings))
	c.mu.Unlock()
	c.flush()

	c.log.Info("collection reset")
}

// Settings returns the current settings.
func (c *Collection) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings replaces the settings. Changing the format returns every
// Converted record to Ready and discards conversions still in flight.
func (c *Collection) UpdateSettings(s Settings) error {
	return c.update(func(Settings) Settings { return s })
}

// SetFormat changes only the target format.
func (c *Collection) SetFormat(f format.Format) error {
	return c.update(func(s Settings) Settings {
		s.Format = f
		return s
	})
}

// SetQuality changes only the quality.
func (c *Collection) SetQuality(q float64) error {
	return c.update(func(s Settings) Settings {
		s.Quality = q
		return s
	})
}

func (c *Collection) update(fn func(Settings) Settings) error {
	c.mu.Lock()
	next := fn(c.settings)
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	prev := c.settings
	c.settings = next
	c.enqueueLocked(settingsSet(next))

	if next.Format != prev.Format {
		c.gen++
		for idx, rec := range c.records {
			if rec.status != StatusConverted {
				continue
			}
			rec.dropResult()
			rec.status = StatusReady
			c.enqueueLocked(changed(rec.view(idx)))
		}
	}
	c.mu.Unlock()
	c.flush()

	c.log.WithFields(logrus.Fields{"format": next.Format, "quality": next.Quality}).Debug("settings changed")
	return nil
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns snapshots of every record in display order.
func (c *Collection) Records() []RecordView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RecordView, len(c.records))
	for i, rec := range c.records {
		out[i] = rec.view(i)
	}
	return out
}

// Get returns a snapshot of one record.
func (c *Collection) Get(id ID) (RecordView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, rec := c.findLocked(id)
	if rec == nil {
		return RecordView{}, false
	}
	return rec.view(idx), true
}

// Download returns a copy of a converted record's encoded bytes.
func (c *Collection) Download(id ID) (Download, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, rec := c.findLocked(id)
	if rec == nil {
		return Download{}, ErrNotFound
	}
	if rec.status != StatusConverted {
		return Download{}, ErrNotConverted
	}
	return downloadOf(rec), nil
}

// Downloads returns every converted result in display order, with file
// names made unique within the set.
func (c *Collection) Downloads() []Download {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloadsLocked()
}

func (c *Collection) downloadsLocked() []Download {
	var out []Download
	for _, rec := range c.records {
		if rec.status == StatusConverted {
			out = append(out, downloadOf(rec))
		}
	}
	return uniqueNames(out)
}

func downloadOf(rec *record) Download {
	return Download{
		RecordID: rec.id,
		FileName: format.SuggestedFileName(rec.name, rec.result.Format()),
		MIME:     rec.result.MIME(),
		Hash:     rec.result.Hash(),
		Data:     bytes.Clone(rec.result.Bytes()),
	}
}

// uniqueNames rewrites colliding names as name.<hash>.ext.
func uniqueNames(ds []Download) []Download {
	counts := make(map[string]int, len(ds))
	for _, d := range ds {
		counts[d.FileName]++
	}
	seen := make(map[string]int, len(ds))
	for i, d := range ds {
		if counts[d.FileName] < 2 {
			seen[d.FileName]++
			continue
		}
		name := withSuffix(d.FileName, hasher.Short(d.Hash))
		if n := seen[name]; n > 0 {
			name = withSuffix(name, strconv.Itoa(n))
		}
		seen[name]++
		ds[i].FileName = name
	}
	return ds
}

func withSuffix(name, suffix string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "." + suffix + ext
}

// Preview returns the decoded image scaled down to fit a maxSide square.
func (c *Collection) Preview(id ID, maxSide int) (image.Image, error) {
	c.mu.Lock()
	_, rec := c.findLocked(id)
	if rec == nil {
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	var img image.Image
	if rec.bitmap != nil {
		img = rec.bitmap.Image()
	}
	c.mu.Unlock()

	if img == nil {
		return nil, ErrNotReady
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos), nil
}

// Wait blocks until every decode and conversion started so far has
// finished and its events have been delivered.
func (c *Collection) Wait() {
	c.wg.Wait()
}

func (c *Collection) findLocked(id ID) (int, *record) {
	for i, rec := range c.records {
		if rec.id == id {
			return i, rec
		}
	}
	return -1, nil
}

// settleLocked emits BatchDownloadReady once a ConvertAll batch has no
// record left loading or converting and at least one result exists.
func (c *Collection) settleLocked() {
	if !c.batch {
		return
	}
	for _, rec := range c.records {
		if rec.status == StatusLoading || rec.status == StatusConverting {
			return
		}
	}
	c.batch = false
	if ds := c.downloadsLocked(); len(ds) > 0 {
		c.enqueueLocked(batchReady(ds))
	}
}

func (c *Collection) enqueueLocked(ev event) {
	c.queue = append(c.queue, ev)
}

// flush delivers queued events in order. Only one goroutine delivers at a
// time; the others leave their events to it. Work is always started before
// flush is called, so a misbehaving observer cannot stall a record.
func (c *Collection) flush() {
	for c.emitMu.TryLock() {
		c.drain()

		c.mu.Lock()
		pending := len(c.queue) > 0
		c.mu.Unlock()
		if !pending {
			return
		}
	}
}

// drain delivers until the queue is empty. The caller holds emitMu.
func (c *Collection) drain() {
	defer c.emitMu.Unlock()
	for {
		c.mu.Lock()
		q := c.queue
		c.queue = nil
		c.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, ev := range q {
			c.deliver(ev)
		}
	}
}

// deliver runs one callback. A panicking observer is logged and skipped.
func (c *Collection) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("observer panicked, event dropped")
		}
	}()
	ev(c.observer)
}
