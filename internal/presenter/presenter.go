// Package presenter renders collection state for humans: a logrus observer
// for live events and plain-text summaries for the CLI.
package presenter

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/AnyUserName/imgconv/internal/collection"
	"github.com/AnyUserName/imgconv/internal/report"
	"github.com/sirupsen/logrus"
)

// Log reports every collection event as a structured log line.
type Log struct {
	log *logrus.Entry
}

var _ collection.Observer = (*Log)(nil)

// NewLog returns an observer writing to l.
func NewLog(l *logrus.Entry) *Log {
	return &Log{log: l}
}

func (p *Log) RecordAdded(v collection.RecordView) {
	p.log.WithFields(logrus.Fields{
		"id":   v.ID,
		"name": v.SourceName,
		"size": FormatSize(v.SourceSize),
	}).Info("image added")
}

func (p *Log) RecordStateChanged(v collection.RecordView) {
	entry := p.log.WithFields(logrus.Fields{
		"id":     v.ID,
		"name":   v.SourceName,
		"status": v.Status,
	})
	switch v.Status {
	case collection.StatusFailed:
		entry.WithFields(logrus.Fields{"kind": v.FailureKind, "reason": v.FailureReason}).Warn("image failed")
	case collection.StatusConverted:
		entry.WithFields(logrus.Fields{
			"output": v.Result.FileName,
			"size":   FormatSize(int64(v.Result.Size)),
		}).Info("image converted")
	case collection.StatusReady:
		entry.WithField("dimensions", fmt.Sprintf("%dx%d", v.Width, v.Height)).Debug("image ready")
	default:
		entry.Debug("image state changed")
	}
}

func (p *Log) RecordRemoved(id collection.ID) {
	p.log.WithField("id", id).Debug("image removed")
}

func (p *Log) SettingsChanged(s collection.Settings) {
	p.log.WithFields(logrus.Fields{
		"format":  s.Format,
		"quality": Percent(s.Quality),
	}).Debug("settings changed")
}

func (p *Log) BatchDownloadReady(ds []collection.Download) {
	var total int64
	for _, d := range ds {
		total += int64(len(d.Data))
	}
	p.log.WithFields(logrus.Fields{
		"files": len(ds),
		"size":  FormatSize(total),
	}).Info("batch download ready")
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count with 1024-based units, at most two
// decimals and no trailing zeros: 0 Bytes, 512 Bytes, 1.5 KB, 2 MB.
func FormatSize(b int64) string {
	if b <= 0 {
		return "0 Bytes"
	}
	v, i := float64(b), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// Percent renders a [0,1] quality as a whole percentage.
func Percent(q float64) int {
	return int(math.Round(q * 100))
}

// WriteEntries prints one line per report entry: position, source, status
// and either the output or the failure reason.
func WriteEntries(w io.Writer, entries []report.Entry) {
	for i, e := range entries {
		line := fmt.Sprintf("    %d. %-32s %10s  %-9s", i+1, trunc(e.Source.Name, 32), FormatSize(e.Source.Size), e.Status)
		switch {
		case e.Output != nil:
			line += fmt.Sprintf(" → %s (%s)", e.Output.Path, FormatSize(e.Output.Size))
		case e.Error != nil:
			line += " " + e.Error.Reason
		}
		fmt.Fprintln(w, line)
	}
}

func trunc(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
