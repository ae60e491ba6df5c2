package agent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
)

type fakeSession struct {
	url      string
	startErr error
	shot     []byte

	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *fakeSession) URL() string { return s.url }

func (s *fakeSession) GetContent(ctx context.Context, format browser.ContentFormat) (*browser.Content, error) {
	return browser.NewContent(format, "<html><body>login</body></html>")
}

func (s *fakeSession) FillInput(ctx context.Context, selector, value string) error { return nil }

func (s *fakeSession) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (s *fakeSession) PressKey(ctx context.Context, selector, key string) error { return nil }

func (s *fakeSession) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (s *fakeSession) WaitForURLChange(ctx context.Context, from string, timeout time.Duration) error {
	return nil
}

func (s *fakeSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if s.shot == nil {
		return nil, errors.New("no screenshot")
	}
	return s.shot, nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type plannerFunc func(ctx context.Context, targetURL string, tools Tools) (string, error)

func (f plannerFunc) Plan(ctx context.Context, targetURL string, tools Tools) (string, error) {
	return f(ctx, targetURL, tools)
}

// memoryStorage is an in-memory storage.BlobStorage.
type memoryStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{blobs: make(map[string][]byte)}
}

func (m *memoryStorage) Upload(ctx context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = data
	return nil
}

func (m *memoryStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

func (m *memoryStorage) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[path]
	return ok, nil
}

func (m *memoryStorage) GetURL(ctx context.Context, path string) (string, error) {
	return "memory://" + path, nil
}

type memoryAssetStore struct {
	mu     sync.Mutex
	assets []*testrun.TestRunAsset
}

func (m *memoryAssetStore) Create(ctx context.Context, asset *testrun.TestRunAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = append(m.assets, asset)
	return nil
}

func (m *memoryAssetStore) ListByTestRun(ctx context.Context, id uuid.UUID) ([]*testrun.TestRunAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*testrun.TestRunAsset
	for _, a := range m.assets {
		if a.TestRunID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

// fakeTools records tool calls and returns scripted results.
type fakeTools struct {
	summary toolset.PageSummary
	results map[string]toolset.Result
	calls   []string
}

func (f *fakeTools) Call(ctx context.Context, name, input string) toolset.Result {
	f.calls = append(f.calls, name+":"+input)
	if res, ok := f.results[name+":"+input]; ok {
		return res
	}
	return toolset.Result{OK: true, Message: "ok"}
}

func (f *fakeTools) Inspect(ctx context.Context) toolset.PageSummary {
	return f.summary
}

func eventMessages(run *testrun.TestRun) []string {
	events, _ := run.EventsSince(0)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Message
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished []string
	ended    []string
}

func (o *recordingObserver) ObserveToolCall(string, bool, time.Duration) {}
func (o *recordingObserver) FindingRecorded(string)                      {}

func (o *recordingObserver) RunStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) RunFinished(status string, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, status)
}

func (o *recordingObserver) RunEnded(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, status)
}
