package settings

import (
	"sort"
	"sync"
	"time"
)

// Origin distinguishes a mutation applied on behalf of a local client
// from one applied because a peer told us about it. Store uses it to
// decide who gets told about the result: local origin mutations are
// eligible for re-broadcast to peers, remote origin mutations are not
// (that would loop gossip forever).
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// SchemaBinding is the subset of a schema registry the store needs:
// whether a name is known, what its default value is, and whether a
// candidate value passes validation. internal/schema.Registry
// implements this; Store depends only on the interface so the two
// packages don't import each other.
type SchemaBinding interface {
	Known(name string) bool
	Default(name string) (text string, ok bool)
	Validate(name, text string) error
}

// EffectiveChangeObserver is notified when a mutation changes a
// setting's effective (highest-priority) value. internal/subscriptions
// implements this.
type EffectiveChangeObserver interface {
	OnEffectiveChange(name string)
}

// StateChangeObserver is notified whenever a local mutation changes
// any stored record, regardless of whether the effective value moved.
// internal/replicator implements this to fan changes out to peers.
type StateChangeObserver interface {
	OnStateChange(name string, origin Origin)
}

// ChangeObserver is notified on every accepted mutation, regardless of
// origin or whether it moved the effective value. internal/coalesce
// uses this to know a save to disk is due: a write to a
// non-top-priority record still needs persisting even though it never
// reaches EffectiveChangeObserver or (for remote origin) StateChangeObserver.
type ChangeObserver interface {
	OnChange(name string)
}

type setting struct {
	records map[Priority]Record
}

func (s *setting) topPriority() (Priority, bool) {
	top := Priority(-2)
	found := false
	for p := range s.records {
		if !found || p > top {
			top = p
			found = true
		}
	}
	return top, found
}

// Store holds every setting's records in memory and is the single
// owner of mutation and lookup logic. A Store is safe for concurrent
// use; all operations take an exclusive lock, matching the original
// daemon's single-threaded event loop semantics without requiring one.
type Store struct {
	mu       sync.Mutex
	settings map[string]*setting
	schema   SchemaBinding

	effectiveObservers []EffectiveChangeObserver
	stateObservers     []StateChangeObserver
	changeObservers    []ChangeObserver
}

// NewStore creates an empty store bound to the given schema. schema
// may be nil, in which case Set accepts every name with no default and
// no validation, and Get reports Unknown for a name with no records
// (useful for tests and for embedding without a definitions directory).
func NewStore(schema SchemaBinding) *Store {
	return &Store{
		settings: make(map[string]*setting),
		schema:   schema,
	}
}

// AddEffectiveObserver registers o to be called, after the store's lock
// is released, whenever a mutation changes a setting's effective value.
func (st *Store) AddEffectiveObserver(o EffectiveChangeObserver) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.effectiveObservers = append(st.effectiveObservers, o)
}

// AddStateObserver registers o to be called, after the store's lock is
// released, whenever a local mutation changes any stored record.
func (st *Store) AddStateObserver(o StateChangeObserver) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stateObservers = append(st.stateObservers, o)
}

// AddChangeObserver registers o to be called, after the store's lock is
// released, on every accepted mutation regardless of origin or
// effective-value impact.
func (st *Store) AddChangeObserver(o ChangeObserver) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.changeObservers = append(st.changeObservers, o)
}

// ListKnown reports whether name is bound in the schema or has at
// least one stored record, without revealing which.
func (st *Store) ListKnown(name string) bool {
	canon, err := CanonicalizeName(name)
	if err != nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.known(canon)
}

func (st *Store) known(name string) bool {
	if st.schema != nil && st.schema.Known(name) {
		return true
	}
	_, exists := st.settings[name]
	return exists
}

// Get resolves a setting's value.
//
//   - priority == HighestPriority asks for the effective value: the
//     highest-priority stored record, falling back to the schema
//     default.
//   - any other priority asks for exactly that record, with no
//     fallback to the default.
func (st *Store) Get(name string, priority Priority) (text string, result GetResult) {
	canon, err := CanonicalizeName(name)
	if err != nil {
		return "", Error
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.settings[canon]

	if priority == HighestPriority {
		if s != nil {
			if top, ok := s.topPriority(); ok {
				return s.records[top].Text, Success
			}
		}
		if st.schema != nil {
			if def, ok := st.schema.Default(canon); ok {
				return def, Default
			}
		}
		if st.known(canon) {
			return "", NotSet
		}
		return "", Unknown
	}

	if !ValidPriority(priority) {
		return "", Error
	}
	if s != nil {
		if rec, ok := s.records[priority]; ok {
			return rec.Text, Success
		}
		return "", PriorityNotFound
	}
	if st.known(canon) {
		return "", PriorityNotFound
	}
	return "", Unknown
}

// GetDefault returns the schema default for name, if any, independent
// of whatever records currently exist.
func (st *Store) GetDefault(name string) (text string, result GetResult) {
	canon, err := CanonicalizeName(name)
	if err != nil {
		return "", Error
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.schema != nil {
		if def, ok := st.schema.Default(canon); ok {
			return def, Default
		}
	}
	if st.known(canon) {
		return "", NotSet
	}
	return "", Unknown
}

// Set writes a record at the given priority, applying last-writer-
// wins-per-priority semantics: a write with a timestamp no newer than
// the existing record at that priority is rejected as stale
// (Unchanged); a strictly newer write replaces the record (Newer if the
// text is unchanged and only the timestamp moved forward, Changed
// otherwise).
func (st *Store) Set(name, text string, priority Priority, ts time.Time, origin Origin) SetResult {
	canon, err := CanonicalizeName(name)
	if err != nil {
		return SetError
	}
	if !ValidPriority(priority) {
		return SetError
	}
	if !ValidTimestamp(ts) {
		return SetError
	}

	st.mu.Lock()

	if st.schema != nil && !st.schema.Known(canon) {
		st.mu.Unlock()
		return SetUnknown
	}
	if st.schema != nil {
		if err := st.schema.Validate(canon, text); err != nil {
			st.mu.Unlock()
			return SetError
		}
	}

	s := st.settings[canon]
	prevTop, hadTop := Priority(0), false
	if s != nil {
		prevTop, hadTop = s.topPriority()
	}

	var result SetResult
	if s == nil {
		s = &setting{records: make(map[Priority]Record)}
		st.settings[canon] = s
		result = New
	} else if existing, ok := s.records[priority]; !ok {
		result = NewPriority
	} else {
		switch {
		case ts.After(existing.Timestamp):
			if text == existing.Text {
				result = Newer
			} else {
				result = Changed
			}
		default:
			result = Unchanged
		}
	}

	if result == Unchanged {
		st.mu.Unlock()
		return result
	}

	s.records[priority] = Record{Text: text, Priority: priority, Timestamp: ts}

	newTop, _ := s.topPriority()
	effectiveChanged := !hadTop || priority >= prevTop || priority == newTop
	if hadTop && priority < prevTop {
		effectiveChanged = false
	}
	st.mu.Unlock()

	st.notify(canon, effectiveChanged, origin)
	return result
}

// Reset removes the record at priority, if any, reporting whether
// anything was actually removed.
func (st *Store) Reset(name string, priority Priority, origin Origin) (removed bool) {
	canon, err := CanonicalizeName(name)
	if err != nil {
		return false
	}
	if !ValidPriority(priority) {
		return false
	}

	st.mu.Lock()

	s := st.settings[canon]
	if s == nil {
		st.mu.Unlock()
		return false
	}
	if _, ok := s.records[priority]; !ok {
		st.mu.Unlock()
		return false
	}

	prevTop, _ := s.topPriority()
	delete(s.records, priority)

	effectiveChanged := priority == prevTop
	if len(s.records) == 0 {
		delete(st.settings, canon)
	}
	st.mu.Unlock()

	st.notify(canon, effectiveChanged, origin)
	return true
}

// notify must be called without st.mu held: observers may call back
// into the Store (Get, Serialize) to read the state they were told about.
func (st *Store) notify(name string, effectiveChanged bool, origin Origin) {
	if effectiveChanged {
		for _, o := range st.effectiveObservers {
			o.OnEffectiveChange(name)
		}
	}
	if origin == OriginLocal {
		for _, o := range st.stateObservers {
			o.OnStateChange(name, origin)
		}
	}
	for _, o := range st.changeObservers {
		o.OnChange(name)
	}
}

// ListOptions returns every known setting name, sorted, combining
// names bound in the schema with names that merely have records.
func (st *Store) ListOptions() []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	seen := make(map[string]struct{})
	for name := range st.settings {
		seen[name] = struct{}{}
	}
	if lister, ok := st.schema.(interface{ Names() []string }); ok {
		for _, name := range lister.Names() {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns a copy of every record currently stored for name,
// sorted by priority. It is used by persistence (to serialize every
// setting) and by the replicator (to serialize one changed setting
// and to seed anti-entropy with the whole store).
func (st *Store) Records(name string) []Record {
	canon, err := CanonicalizeName(name)
	if err != nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.settings[canon]
	if s == nil {
		return nil
	}
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// AllNames returns every setting name that currently has at least one
// stored record, sorted. Used by persistence to enumerate what to save
// and by the replicator to seed anti-entropy.
func (st *Store) AllNames() []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	names := make([]string, 0, len(st.settings))
	for name := range st.settings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyRecord installs rec for name directly, bypassing schema
// validation. It is used by persistence on load and by the replicator
// when applying a peer's anti-entropy stream: both sources are
// trusted to have already validated their data, and schema
// definitions may not have loaded yet when persisted state is
// restored at startup.
func (st *Store) ApplyRecord(name string, rec Record, origin Origin) SetResult {
	canon, err := CanonicalizeName(name)
	if err != nil {
		return SetError
	}
	if err := rec.validate(); err != nil {
		return SetError
	}

	st.mu.Lock()

	s := st.settings[canon]
	prevTop, hadTop := Priority(0), false
	if s != nil {
		prevTop, hadTop = s.topPriority()
	}

	var result SetResult
	if s == nil {
		s = &setting{records: make(map[Priority]Record)}
		st.settings[canon] = s
		result = New
	} else if existing, ok := s.records[rec.Priority]; !ok {
		result = NewPriority
	} else if rec.Timestamp.After(existing.Timestamp) {
		if rec.Text == existing.Text {
			result = Newer
		} else {
			result = Changed
		}
	} else {
		result = Unchanged
	}

	if result == Unchanged {
		st.mu.Unlock()
		return result
	}

	s.records[rec.Priority] = rec
	newTop, _ := s.topPriority()
	effectiveChanged := !hadTop || rec.Priority >= prevTop || rec.Priority == newTop
	if hadTop && rec.Priority < prevTop {
		effectiveChanged = false
	}
	st.mu.Unlock()

	st.notify(canon, effectiveChanged, origin)
	return result
}
