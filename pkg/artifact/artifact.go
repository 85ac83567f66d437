package artifact

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/uicheck/pkg/logging"
)

// MIME types produced by diagnostic capture.
const (
	MIMEPNG  = "image/png"
	MIMEZip  = "application/zip"
	MIMEHTML = "text/html"
	MIMEText = "text/plain"
)

// Kind classifies an artifact by what it captured.
type Kind string

const (
	KindScreenshot  Kind = "screenshot"
	KindTrace       Kind = "trace"
	KindDOMSnapshot Kind = "dom"
	KindLog         Kind = "log"
	KindOther       Kind = "other"
)

// KindOf maps a MIME type to the artifact kind it carries.
func KindOf(mimeType string) Kind {
	switch mimeType {
	case MIMEPNG:
		return KindScreenshot
	case MIMEZip:
		return KindTrace
	case MIMEHTML:
		return KindDOMSnapshot
	case MIMEText:
		return KindLog
	default:
		return KindOther
	}
}

// Artifact is a captured diagnostic payload.
type Artifact struct {
	Name      string
	MIMEType  string
	Data      []byte
	Worker    string
	CreatedAt time.Time
}

// New creates an artifact stamped with the current time.
func New(name, mimeType, worker string, data []byte) Artifact {
	return Artifact{
		Name:      name,
		MIMEType:  mimeType,
		Data:      data,
		Worker:    worker,
		CreatedAt: time.Now(),
	}
}

// Kind returns the artifact kind derived from its MIME type.
func (a Artifact) Kind() Kind {
	return KindOf(a.MIMEType)
}

// Size returns the payload size in bytes.
func (a Artifact) Size() int {
	return len(a.Data)
}

// Sink receives diagnostic artifacts. Callers treat a returned error as
// "not persisted" and carry on.
type Sink interface {
	Attach(name, mimeType string, data []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(name, mimeType string, data []byte) error

// Attach calls f.
func (f SinkFunc) Attach(name, mimeType string, data []byte) error {
	return f(name, mimeType, data)
}

// MultiSink fans an artifact out to every sink. All sinks are attempted and
// their failures joined.
type MultiSink []Sink

// Attach forwards to each sink in order.
func (m MultiSink) Attach(name, mimeType string, data []byte) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Attach(name, mimeType, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink records each attachment as a log line without persisting bytes.
type LogSink struct {
	Logger *logging.Logger
}

// Attach logs the attachment.
func (s LogSink) Attach(name, mimeType string, data []byte) error {
	s.Logger.Infof("attached %s artifact %q (%s, %d bytes)", KindOf(mimeType), name, mimeType, len(data))
	return nil
}

// MemorySink keeps artifacts in memory. It is safe for concurrent use.
type MemorySink struct {
	mu        sync.Mutex
	artifacts []Artifact
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Attach stores a copy of data.
func (s *MemorySink) Attach(name, mimeType string, data []byte) error {
	if name == "" {
		return fmt.Errorf("artifact name is required")
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, New(name, mimeType, "", buf))
	return nil
}

// Artifacts returns the stored artifacts in attach order.
func (s *MemorySink) Artifacts() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// ByKind returns the stored artifacts of one kind.
func (s *MemorySink) ByKind(kind Kind) []Artifact {
	var out []Artifact
	for _, a := range s.Artifacts() {
		if a.Kind() == kind {
			out = append(out, a)
		}
	}
	return out
}

// Reset drops every stored artifact.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = nil
}
