package audit

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogSink writes entries to a structured logger
type LogSink struct {
	log *logrus.Logger
}

// NewLogSink creates a sink writing to log
func NewLogSink(log *logrus.Logger) *LogSink {
	if log == nil {
		log = logrus.New()
	}
	return &LogSink{log: log}
}

// Name implements Named
func (s *LogSink) Name() string { return "log" }

// Record implements Sink
func (s *LogSink) Record(ctx context.Context, entry *Entry) error {
	fields := logrus.Fields{
		"audit_action": entry.Action,
		"request_id":   entry.RequestID,
		"details":      entry.Details,
	}
	if entry.ActorID != nil {
		fields["actor_id"] = *entry.ActorID
	}
	if entry.TargetID != nil {
		fields["target_id"] = *entry.TargetID
	}
	if entry.IPAddress != "" {
		fields["ip_address"] = entry.IPAddress
	}
	s.log.WithFields(fields).Info("audit")
	return nil
}

// MemorySink keeps entries in memory
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// Name implements Named
func (s *MemorySink) Name() string { return "memory" }

// Record implements Sink
func (s *MemorySink) Record(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// Entries returns a copy of the recorded entries
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Actions returns the action of every recorded entry in order
func (s *MemorySink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

// Reset drops all recorded entries
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
