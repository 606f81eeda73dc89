// Package subscriptions tracks which remote peers want to be told
// about changes to which settings, and dispatches those
// notifications when the store reports an effective-value change.
package subscriptions

import (
	"sort"
	"sync"

	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

// Subscriber identifies a listener by the opaque (peer, service) pair
// the bus protocol uses to address it. Router treats both fields as
// opaque strings; it never interprets them.
type Subscriber struct {
	Peer    string
	Service string
}

// ValueLookup is the subset of *settings.Store the router needs to
// fetch a setting's current effective value when it fans out a
// change notification.
type ValueLookup interface {
	Get(name string, priority settings.Priority) (text string, result settings.GetResult)
}

// Notifier delivers a value-changed notification to one subscriber.
// internal/protocol implements this to turn it into a VALUE_UPDATED
// bus message.
type Notifier interface {
	NotifyValueChanged(sub Subscriber, name, value string, isSet bool)
}

// Router is the subscription bookkeeping for component D: which
// subscribers are listening to which names, and fan-out on change.
// It holds no bus connection of its own; NotifyValueChanged is left
// to whatever Notifier is registered.
type Router struct {
	mu          sync.Mutex
	subscribers map[string]map[Subscriber]struct{}
	lookup      ValueLookup
	notifier    Notifier
}

// NewRouter creates a router that resolves effective values through
// lookup. notifier may be set later with SetNotifier; until then,
// effective-value changes are tracked but not delivered anywhere
// (useful when wiring up a daemon before the bus connection exists).
func NewRouter(lookup ValueLookup) *Router {
	return &Router{
		subscribers: make(map[string]map[Subscriber]struct{}),
		lookup:      lookup,
	}
}

// SetNotifier installs the delivery mechanism for change
// notifications.
func (r *Router) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// Listen registers sub as interested in every name in names, which
// must already be canonicalised. It reports whether at least one of
// them was a new registration; the caller uses this to decide between
// a plain REGISTERED reply and one carrying "already registered".
func (r *Router) Listen(sub Subscriber, names []string) (anyNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		set, ok := r.subscribers[name]
		if !ok {
			set = make(map[Subscriber]struct{})
			r.subscribers[name] = set
		}
		if _, already := set[sub]; !already {
			set[sub] = struct{}{}
			anyNew = true
		}
	}
	return anyNew
}

// Forget removes sub's interest in every name in names. It reports
// whether at least one subscription was actually removed.
func (r *Router) Forget(sub Subscriber, names []string) (anyRemoved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		set, ok := r.subscribers[name]
		if !ok {
			continue
		}
		if _, present := set[sub]; present {
			delete(set, sub)
			anyRemoved = true
			if len(set) == 0 {
				delete(r.subscribers, name)
			}
		}
	}
	return anyRemoved
}

// ForgetAll removes every subscription held by sub, across all names.
// Used when a client connection drops.
func (r *Router) ForgetAll(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, set := range r.subscribers {
		if _, present := set[sub]; present {
			delete(set, sub)
			if len(set) == 0 {
				delete(r.subscribers, name)
			}
		}
	}
}

// OnEffectiveChange implements settings.EffectiveChangeObserver. The
// store calls it, after releasing its lock, whenever a mutation changes a setting's
// effective value; Router fetches the new value and tells every
// subscriber of name.
func (r *Router) OnEffectiveChange(name string) {
	value, result := r.lookup.Get(name, settings.HighestPriority)
	isSet := result == settings.Success || result == settings.Default

	r.mu.Lock()
	notifier := r.notifier
	subs := make([]Subscriber, 0, len(r.subscribers[name]))
	for sub := range r.subscribers[name] {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	if notifier == nil {
		return
	}
	for _, sub := range subs {
		notifier.NotifyValueChanged(sub, name, value, isSet)
	}
}

// Subscribers returns a sorted snapshot of every subscriber listening
// to name, for inspection and tests.
func (r *Router) Subscribers(name string) []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := make([]Subscriber, 0, len(r.subscribers[name]))
	for sub := range r.subscribers[name] {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Peer != subs[j].Peer {
			return subs[i].Peer < subs[j].Peer
		}
		return subs[i].Service < subs[j].Service
	})
	return subs
}

// SubscriberCount returns the total number of (name, subscriber) pairs
// currently tracked, for the subscriber-count metrics gauge.
func (r *Router) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, set := range r.subscribers {
		count += len(set)
	}
	return count
}

// WatchedNameCount returns the number of distinct setting names with
// at least one subscriber, for the watched-names metrics gauge.
func (r *Router) WatchedNameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

var _ settings.EffectiveChangeObserver = (*Router)(nil)
