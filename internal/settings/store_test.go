package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tsAt(seconds int64) time.Time {
	return Epoch.Add(time.Duration(seconds) * time.Second)
}

func TestCanonicalizeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"app::cache-size", "app::cache_size", false},
		{"app::cache_size", "app::cache_size", false},
		{"single", "single", false},
		{"", "", true},
		{"app::-bad", "app::_bad", false},
		{"app::1bad", "", true},
		{"app::bad!name", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizeName(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStoreSetNewAndChanged(t *testing.T) {
	st := NewStore(nil)

	res := st.Set("app::size", "10", AdministratorPriority, tsAt(1), OriginLocal)
	assert.Equal(t, New, res)

	res = st.Set("app::size", "20", AdministratorPriority, tsAt(2), OriginLocal)
	assert.Equal(t, Changed, res)

	text, gr := st.Get("app::size", HighestPriority)
	assert.Equal(t, Success, gr)
	assert.Equal(t, "20", text)
}

func TestStoreSetStaleRejected(t *testing.T) {
	st := NewStore(nil)
	st.Set("app::size", "10", AdministratorPriority, tsAt(5), OriginLocal)

	res := st.Set("app::size", "99", AdministratorPriority, tsAt(1), OriginLocal)
	assert.Equal(t, Unchanged, res)

	text, _ := st.Get("app::size", HighestPriority)
	assert.Equal(t, "10", text)
}

func TestStoreSetNewerSameText(t *testing.T) {
	st := NewStore(nil)
	st.Set("app::size", "10", AdministratorPriority, tsAt(1), OriginLocal)

	res := st.Set("app::size", "10", AdministratorPriority, tsAt(2), OriginLocal)
	assert.Equal(t, Newer, res)
}

func TestStoreHighestPriorityWins(t *testing.T) {
	st := NewStore(nil)
	st.Set("app::size", "default", DefaultsPriority, tsAt(1), OriginLocal)
	st.Set("app::size", "forced", 60, tsAt(1), OriginLocal)
	st.Set("app::size", "admin", AdministratorPriority, tsAt(1), OriginLocal)

	text, gr := st.Get("app::size", HighestPriority)
	assert.Equal(t, Success, gr)
	assert.Equal(t, "forced", text)

	text, gr = st.Get("app::size", AdministratorPriority)
	assert.Equal(t, Success, gr)
	assert.Equal(t, "admin", text)

	_, gr = st.Get("app::size", 70)
	assert.Equal(t, PriorityNotFound, gr)
}

func TestStoreGetUnknown(t *testing.T) {
	st := NewStore(nil)
	_, gr := st.Get("app::missing", HighestPriority)
	assert.Equal(t, Unknown, gr)
}

func TestStoreResetPrunesEmptySetting(t *testing.T) {
	st := NewStore(nil)
	st.Set("app::size", "10", AdministratorPriority, tsAt(1), OriginLocal)

	removed := st.Reset("app::size", AdministratorPriority, OriginLocal)
	assert.True(t, removed)

	_, gr := st.Get("app::size", HighestPriority)
	assert.Equal(t, Unknown, gr)

	removed = st.Reset("app::size", AdministratorPriority, OriginLocal)
	assert.False(t, removed)
}

func TestStoreResetAtNonTopPriorityDoesNotChangeEffectiveValue(t *testing.T) {
	st := NewStore(nil)
	st.Set("app::size", "default", DefaultsPriority, tsAt(1), OriginLocal)
	st.Set("app::size", "forced", 60, tsAt(1), OriginLocal)

	var changed []string
	st.AddEffectiveObserver(effectiveObserverFunc(func(name string) {
		changed = append(changed, name)
	}))

	st.Reset("app::size", DefaultsPriority, OriginLocal)
	assert.Empty(t, changed)

	text, _ := st.Get("app::size", HighestPriority)
	assert.Equal(t, "forced", text)
}

func TestStoreLowerPriorityWriteDoesNotNotifyEffectiveObserver(t *testing.T) {
	st := NewStore(nil)
	st.Set("app::size", "forced", 60, tsAt(1), OriginLocal)

	var changed []string
	st.AddEffectiveObserver(effectiveObserverFunc(func(name string) {
		changed = append(changed, name)
	}))

	res := st.Set("app::size", "admin", AdministratorPriority, tsAt(1), OriginLocal)
	assert.Equal(t, NewPriority, res)
	assert.Empty(t, changed)
}

func TestStoreRemoteOriginSkipsStateObserver(t *testing.T) {
	st := NewStore(nil)

	var calls int
	st.AddStateObserver(stateObserverFunc(func(name string, origin Origin) {
		calls++
	}))

	st.Set("app::size", "10", AdministratorPriority, tsAt(1), OriginRemote)
	assert.Equal(t, 0, calls)

	st.Set("app::size", "20", AdministratorPriority, tsAt(2), OriginLocal)
	assert.Equal(t, 1, calls)
}

func TestStoreChangeObserverFiresForEveryOriginAndPriority(t *testing.T) {
	st := NewStore(nil)

	var calls []string
	st.AddChangeObserver(changeObserverFunc(func(name string) {
		calls = append(calls, name)
	}))

	st.Set("app::size", "10", DefaultsPriority, tsAt(1), OriginLocal)
	st.Set("app::size", "20", AdministratorPriority, tsAt(2), OriginRemote)
	st.Reset("app::size", DefaultsPriority, OriginLocal)

	assert.Equal(t, []string{"app::size", "app::size", "app::size"}, calls)
}

func TestStoreSerializeDeserializeRoundTrip(t *testing.T) {
	src := NewStore(nil)
	src.Set("app::size", "10", DefaultsPriority, tsAt(1), OriginLocal)
	src.Set("app::size", "20", AdministratorPriority, tsAt(2), OriginLocal)
	src.Set("app::size", "pipe|and\\slash\nand\rcr", 60, tsAt(3), OriginLocal)

	blob := src.Serialize("app::size")
	require.NotEmpty(t, blob)

	dst := NewStore(nil)
	applied, err := dst.Deserialize("app::size", blob, OriginRemote)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	assert.Equal(t, src.Records("app::size"), dst.Records("app::size"))
}

func TestStoreApplyRecordOutOfRangeRejected(t *testing.T) {
	st := NewStore(nil)
	res := st.ApplyRecord("app::size", Record{Text: "x", Priority: 150, Timestamp: tsAt(1)}, OriginRemote)
	assert.Equal(t, SetError, res)
}

func TestStoreSetRejectsTimestampBeforeEpoch(t *testing.T) {
	st := NewStore(nil)
	res := st.Set("app::size", "10", AdministratorPriority, Epoch.Add(-time.Second), OriginLocal)
	assert.Equal(t, SetError, res)
}

func TestStoreSetRejectsPriorityOutOfRange(t *testing.T) {
	st := NewStore(nil)
	res := st.Set("app::size", "10", 100, tsAt(1), OriginLocal)
	assert.Equal(t, SetError, res)
}

func TestStoreListOptions(t *testing.T) {
	st := NewStore(nil)
	st.Set("zzz::a", "1", AdministratorPriority, tsAt(1), OriginLocal)
	st.Set("aaa::b", "2", AdministratorPriority, tsAt(1), OriginLocal)

	assert.Equal(t, []string{"aaa::b", "zzz::a"}, st.ListOptions())
}

type effectiveObserverFunc func(name string)

func (f effectiveObserverFunc) OnEffectiveChange(name string) { f(name) }

type stateObserverFunc func(name string, origin Origin)

func (f stateObserverFunc) OnStateChange(name string, origin Origin) { f(name, origin) }

type changeObserverFunc func(name string)

func (f changeObserverFunc) OnChange(name string) { f(name) }
