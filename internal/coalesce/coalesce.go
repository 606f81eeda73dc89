// Package coalesce schedules the two background activities that must
// happen on a delay rather than synchronously inside a request: saving
// the store to disk, and broadcasting gossip. Both are coalescing
// timers rather than fixed-rate loops — a burst of mutations re-arms
// the save timer instead of saving once per mutation, and the gossip
// ticker fires immediately on start instead of waiting out its first
// full period.
package coalesce

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

// Scheduler owns the save-debounce timer and the gossip ticker. It
// implements settings.ChangeObserver so a Store can drive the save
// timer directly.
type Scheduler struct {
	saveTimeout   time.Duration
	gossipTimeout time.Duration
	onSave        func()
	onGossip      func()

	mu        sync.Mutex
	saveTimer *time.Timer
	running   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ settings.ChangeObserver = (*Scheduler)(nil)

// New builds a Scheduler. onSave is invoked at most once per
// saveTimeout quiet period after the last OnChange; onGossip is
// invoked once immediately on Start and then every gossipTimeout.
func New(saveTimeout, gossipTimeout time.Duration, onSave, onGossip func()) *Scheduler {
	return &Scheduler{
		saveTimeout:   saveTimeout,
		gossipTimeout: gossipTimeout,
		onSave:        onSave,
		onGossip:      onGossip,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the gossip ticker. The save timer is armed lazily by
// OnChange and needs no explicit start.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.gossipWorker()
}

// Stop cancels the save timer and gossip ticker and waits for the
// gossip worker goroutine to exit. A save already in flight is not
// interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

// OnChange implements settings.ChangeObserver. Every call re-arms the
// save timer for saveTimeout from now, so a burst of mutations
// produces exactly one save once the burst goes quiet — mirroring the
// original daemon's save_timer, which is disabled until the first
// change and re-enabled on every subsequent one.
func (s *Scheduler) OnChange(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.saveTimeout, s.fireSave)
}

func (s *Scheduler) fireSave() {
	s.mu.Lock()
	s.saveTimer = nil
	s.mu.Unlock()

	log.Debug().Msg("coalesce: save timer fired")
	s.onSave()
}

func (s *Scheduler) gossipWorker() {
	defer s.wg.Done()

	// The first tick fires immediately: a freshly started daemon
	// should announce itself to the bus right away rather than wait
	// out a full gossipTimeout period.
	log.Debug().Msg("coalesce: initial gossip broadcast")
	s.onGossip()

	ticker := time.NewTicker(s.gossipTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.onGossip()
		}
	}
}
