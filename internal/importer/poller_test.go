package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/shared/notify"
)

// scriptedFetcher replays a fixed status sequence, repeating the last item.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []response
	fetches   int
}

type response struct {
	status backend.FileImportStatus
	err    error
}

func (s *scriptedFetcher) ImportStatus(context.Context) (backend.FileImportStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.fetches
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.fetches++
	r := s.responses[idx]
	return r.status, r.err
}

func (s *scriptedFetcher) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type safeRecorder struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (r *safeRecorder) record(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *safeRecorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.notifications...)
}

const testInterval = 10 * time.Millisecond

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestPollUntilCompleted(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{status: backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 10}},
		{status: backend.FileImportStatus{Status: backend.ImportCompleted, Progress: 100}},
	}}
	rec := &safeRecorder{}

	p := NewPoller(fetcher, testInterval, rec.record, nil)
	p.Start()

	if got := rec.all(); len(got) != 0 {
		t.Fatalf("no terminal notification expected after first in-progress fetch, got %v", got)
	}

	waitFor(t, func() bool { return len(rec.all()) == 1 })

	if p.State() != Done {
		t.Fatalf("expected Done state")
	}
	if got := rec.all(); got[0].Severity != notify.SeveritySuccess {
		t.Fatalf("expected a success notification, got %v", got)
	}

	// The loop stopped: no third fetch happens.
	fetched := fetcher.fetchCount()
	time.Sleep(5 * testInterval)
	if fetcher.fetchCount() != fetched {
		t.Fatalf("poller kept fetching after terminal state")
	}
	if fetched != 2 {
		t.Fatalf("expected 2 fetches, got %d", fetched)
	}
}

func TestImmediateTerminalStateSkipsTimer(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{status: backend.FileImportStatus{Status: backend.ImportCompleted, Progress: 100}},
	}}
	rec := &safeRecorder{}

	p := NewPoller(fetcher, testInterval, rec.record, nil)
	p.Start()

	if p.State() != Done {
		t.Fatalf("expected Done after immediate terminal fetch")
	}
	got := rec.all()
	if len(got) != 1 || got[0].Severity != notify.SeveritySuccess {
		t.Fatalf("expected exactly one success notification, got %v", got)
	}

	time.Sleep(5 * testInterval)
	if fetcher.fetchCount() != 1 {
		t.Fatalf("expected a single fetch, got %d", fetcher.fetchCount())
	}
}

func TestFailureNotifiedOnce(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{status: backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 40}},
		{status: backend.FileImportStatus{Status: backend.ImportFailed, Progress: 40}},
	}}
	rec := &safeRecorder{}

	p := NewPoller(fetcher, testInterval, rec.record, nil)
	p.Start()
	waitFor(t, func() bool { return len(rec.all()) == 1 })

	time.Sleep(5 * testInterval)
	got := rec.all()
	if len(got) != 1 || got[0].Severity != notify.SeverityError {
		t.Fatalf("expected exactly one failure notification, got %v", got)
	}
}

func TestTransientFetchErrorKeepsPolling(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{status: backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 10}},
		{err: errors.New("connection reset")},
		{status: backend.FileImportStatus{Status: backend.ImportCompleted, Progress: 100}},
	}}
	rec := &safeRecorder{}

	p := NewPoller(fetcher, testInterval, rec.record, nil)
	p.Start()
	waitFor(t, func() bool { return p.State() == Done })

	got := rec.all()
	if len(got) != 1 || got[0].Severity != notify.SeveritySuccess {
		t.Fatalf("expected the error to be swallowed, got %v", got)
	}
	if fetcher.fetchCount() != 3 {
		t.Fatalf("expected 3 fetches, got %d", fetcher.fetchCount())
	}
}

func TestStartIsNotReentrant(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{status: backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 10}},
		{status: backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 20}},
		{status: backend.FileImportStatus{Status: backend.ImportCompleted, Progress: 100}},
	}}
	rec := &safeRecorder{}

	p := NewPoller(fetcher, testInterval, rec.record, nil)
	p.Start()
	p.Start()
	p.Start()

	waitFor(t, func() bool { return len(rec.all()) == 1 })
	time.Sleep(5 * testInterval)

	// One loop: the scripted sequence is consumed exactly once.
	if fetcher.fetchCount() != 3 {
		t.Fatalf("expected a single polling loop with 3 fetches, got %d", fetcher.fetchCount())
	}
	if got := rec.all(); len(got) != 1 {
		t.Fatalf("expected exactly one terminal notification, got %v", got)
	}
}

func TestCancelStopsCallbacks(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{status: backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 10}},
	}}
	rec := &safeRecorder{}

	p := NewPoller(fetcher, testInterval, rec.record, nil)
	p.Start()
	p.Cancel()

	fetched := fetcher.fetchCount()
	time.Sleep(5 * testInterval)
	if fetcher.fetchCount() != fetched {
		t.Fatalf("poller fetched after cancel")
	}
	if got := rec.all(); len(got) != 0 {
		t.Fatalf("expected no notifications after cancel, got %v", got)
	}
	if p.State() != Done {
		t.Fatalf("expected Done after cancel")
	}
}

func TestProgressCallback(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{status: backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 10}},
		{status: backend.FileImportStatus{Status: backend.ImportCompleted, Progress: 100}},
	}}

	var mu sync.Mutex
	var seen []float64
	p := NewPoller(fetcher, testInterval, nil, func(s backend.FileImportStatus) {
		mu.Lock()
		seen = append(seen, s.Progress)
		mu.Unlock()
	})
	p.Start()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if seen[0] != 10 || seen[1] != 100 {
		t.Fatalf("expected progress callbacks [10 100], got %v", seen)
	}
}
