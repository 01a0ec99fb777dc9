package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"nodemapper/internal/events"
	"nodemapper/internal/infra/session/memory"
	"nodemapper/pkg/domain"
)

type folder struct {
	domain.Lazy
	Path  string `odm:",path"`
	Title string `odm:"title"`
}

func (*folder) NodeType() string { return "folder" }

type author struct {
	domain.Lazy
	Path string `odm:",path"`
	Name string `odm:"name"`
}

func (*author) NodeType() string { return "author" }

type article struct {
	domain.Lazy
	Path   string  `odm:",path"`
	Title  string  `odm:"title"`
	Year   int     `odm:"year"`
	Author *author `odm:"author,reference"`
}

func (*article) NodeType() string { return "article" }

// linked references a document of its own type.
type linked struct {
	Path string  `odm:",path"`
	Peer *linked `odm:"peer,reference"`
}

// counter has no lazy handle and is always loaded eagerly.
type counter struct {
	Path  string `odm:",path"`
	Value int    `odm:"value"`
}

// recordingSession wraps the memory session with call recording, injected
// write failures and an optional gate blocking reads.
type recordingSession struct {
	*memory.Session

	mu        sync.Mutex
	reads     map[string]int
	writes    []string
	deletes   []string
	exists    int
	failWrite map[string]error
	readGate  chan struct{}
}

func newRecordingSession() *recordingSession {
	return &recordingSession{
		Session:   memory.NewSession(),
		reads:     make(map[string]int),
		failWrite: make(map[string]error),
	}
}

func (s *recordingSession) ReadNode(ctx context.Context, path string) (domain.Node, bool, error) {
	s.mu.Lock()
	s.reads[path]++
	gate := s.readGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return s.Session.ReadNode(ctx, path)
}

func (s *recordingSession) WriteNode(ctx context.Context, path string, node domain.Node) (string, error) {
	s.mu.Lock()
	if err := s.failWrite[path]; err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.writes = append(s.writes, path)
	s.mu.Unlock()
	return s.Session.WriteNode(ctx, path, node)
}

func (s *recordingSession) DeleteNode(ctx context.Context, path string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, path)
	s.mu.Unlock()
	return s.Session.DeleteNode(ctx, path)
}

func (s *recordingSession) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	s.exists++
	s.mu.Unlock()
	return s.Session.Exists(ctx, path)
}

// calls reports the total number of repository calls seen so far.
func (s *recordingSession) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.writes) + len(s.deletes) + s.exists
	for _, c := range s.reads {
		n += c
	}
	return n
}

// renamingSession stores nodes written under from at to instead, the way a
// repository that assigns its own names would.
type renamingSession struct {
	*recordingSession
	from, to string
}

func (s *renamingSession) WriteNode(ctx context.Context, path string, node domain.Node) (string, error) {
	if path == s.from {
		path = s.to
		node.Path = s.to
	}
	return s.recordingSession.WriteNode(ctx, path, node)
}

func (s *recordingSession) readsOf(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[path]
}

func (s *recordingSession) writeLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func (s *recordingSession) failOn(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failWrite, path)
		return
	}
	s.failWrite[path] = err
}

// seed writes a node directly, bypassing any unit of work.
func seed(t *testing.T, s domain.RepositorySession, path, nodeType string, props map[string]string) {
	t.Helper()
	p := make(domain.Properties, len(props))
	for k, v := range props {
		p[k] = []byte(v)
	}
	if _, err := s.WriteNode(context.Background(), path, domain.Node{Path: path, Type: nodeType, Properties: p}); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

// captureLogger records log lines for assertions.
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (l *captureLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if len(line) > len(level) && line[:len(level)+1] == level+" " {
			n++
		}
	}
	return n
}

// eventRecorder subscribes to every event on a fresh bus.
type eventRecorder struct {
	bus   *events.Bus
	mu    sync.Mutex
	names []string
}

func newEventRecorder() *eventRecorder {
	r := &eventRecorder{bus: events.NewBus()}
	r.bus.Subscribe("", func(_ context.Context, name string, _ any) error {
		r.mu.Lock()
		r.names = append(r.names, name)
		r.mu.Unlock()
		return nil
	})
	return r
}

func (r *eventRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}
