package importer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/shared/notify"
)

// StatusFetcher is the single backend operation the poller depends on.
// *backend.Client satisfies it.
type StatusFetcher interface {
	ImportStatus(ctx context.Context) (backend.FileImportStatus, error)
}

// State of the polling loop.
type State int

const (
	Idle State = iota
	Polling
	Done
)

// DefaultInterval is the fixed delay between status fetches.
const DefaultInterval = time.Second

// Poller drives a file import job to completion by polling the import
// status endpoint. It is started once after the upload and emits exactly
// one terminal notification when the job completes or fails. Fetch failures
// while polling are transient: they are logged and the loop continues.
type Poller struct {
	api      StatusFetcher
	interval time.Duration
	notify   notify.Func
	onStatus func(backend.FileImportStatus)

	mu    sync.Mutex
	state State
	timer *time.Timer
}

// NewPoller creates a poller. Interval <= 0 selects DefaultInterval, a nil
// notifier discards notifications. onStatus, if non-nil, receives every
// successfully fetched status (for progress rendering) and may be called
// from the timer goroutine.
func NewPoller(api StatusFetcher, interval time.Duration, notifier notify.Func, onStatus func(backend.FileImportStatus)) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Poller{
		api:      api,
		interval: interval,
		notify:   notifier,
		onStatus: onStatus,
	}
}

// State returns the current polling state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins polling with an immediate first fetch. If that fetch already
// reports a terminal state no timer is ever created. Calling Start while
// already polling is a no-op: at most one polling loop is active.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.state == Polling {
		p.mu.Unlock()
		return
	}
	p.state = Polling
	p.mu.Unlock()

	p.poll()
}

// Cancel stops the polling loop. No status callbacks fire afterwards. The
// owning view calls this on teardown; an import abandoned this way keeps
// running server-side.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.state == Polling {
		p.state = Done
	}
}

func (p *Poller) poll() {
	p.mu.Lock()
	if p.state != Polling {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	status, err := p.api.ImportStatus(context.Background())
	if err != nil {
		// Transient: keep the loop alive, the job must still reach a
		// terminal state.
		log.Printf("import status fetch failed, retrying: %v", err)
		p.schedule()
		return
	}

	p.mu.Lock()
	if p.state != Polling {
		// Cancelled while the fetch was in flight.
		p.mu.Unlock()
		return
	}
	terminal := status.Terminal()
	if terminal {
		p.state = Done
		if p.timer != nil {
			p.timer.Stop()
			p.timer = nil
		}
	}
	p.mu.Unlock()

	if p.onStatus != nil {
		p.onStatus(status)
	}

	if !terminal {
		p.schedule()
		return
	}

	if status.Status == backend.ImportCompleted {
		p.notify(notify.Notification{
			Severity: notify.SeveritySuccess,
			Summary:  "Import completed",
			Detail:   "The file import finished successfully.",
		})
	} else {
		p.notify(notify.Notification{
			Severity: notify.SeverityError,
			Summary:  "Import failed",
			Detail:   fmt.Sprintf("The file import failed at %.0f%%.", status.Progress),
		})
	}
}

func (p *Poller) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Polling {
		return
	}
	p.timer = time.AfterFunc(p.interval, p.poll)
}
