package collection

// Observer is notified of every state transition. Callbacks are serialized
// and delivered in transition order, never while the collection is locked,
// so they may call back into the collection. A callback that panics is
// logged and skipped.
type Observer interface {
	RecordAdded(RecordView)
	RecordStateChanged(RecordView)
	RecordRemoved(ID)
	SettingsChanged(Settings)
	BatchDownloadReady([]Download)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) RecordAdded(RecordView)        {}
func (NopObserver) RecordStateChanged(RecordView) {}
func (NopObserver) RecordRemoved(ID)              {}
func (NopObserver) SettingsChanged(Settings)      {}
func (NopObserver) BatchDownloadReady([]Download) {}

type event func(Observer)

func added(v RecordView) event      { return func(o Observer) { o.RecordAdded(v) } }
func changed(v RecordView) event    { return func(o Observer) { o.RecordStateChanged(v) } }
func removed(id ID) event           { return func(o Observer) { o.RecordRemoved(id) } }
func settingsSet(s Settings) event  { return func(o Observer) { o.SettingsChanged(s) } }
func batchReady(d []Download) event { return func(o Observer) { o.BatchDownloadReady(d) } }
