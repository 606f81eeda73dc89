package subscriptions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

type fakeLookup struct {
	text   string
	result settings.GetResult
}

func (f fakeLookup) Get(name string, priority settings.Priority) (string, settings.GetResult) {
	return f.text, f.result
}

type recordedNotification struct {
	sub   Subscriber
	name  string
	value string
	isSet bool
}

type fakeNotifier struct {
	calls []recordedNotification
}

func (f *fakeNotifier) NotifyValueChanged(sub Subscriber, name, value string, isSet bool) {
	f.calls = append(f.calls, recordedNotification{sub, name, value, isSet})
}

func TestListenReportsNewRegistrations(t *testing.T) {
	r := NewRouter(fakeLookup{})
	sub := Subscriber{Peer: "p1", Service: "svc"}

	anyNew := r.Listen(sub, []string{"app::a", "app::b"})
	assert.True(t, anyNew)

	anyNew = r.Listen(sub, []string{"app::a", "app::b"})
	assert.False(t, anyNew)

	anyNew = r.Listen(sub, []string{"app::a", "app::c"})
	assert.True(t, anyNew)
}

func TestForgetReportsRemovals(t *testing.T) {
	r := NewRouter(fakeLookup{})
	sub := Subscriber{Peer: "p1", Service: "svc"}
	r.Listen(sub, []string{"app::a"})

	anyRemoved := r.Forget(sub, []string{"app::a"})
	assert.True(t, anyRemoved)

	anyRemoved = r.Forget(sub, []string{"app::a"})
	assert.False(t, anyRemoved)
}

func TestForgetAllRemovesEverySubscription(t *testing.T) {
	r := NewRouter(fakeLookup{})
	sub := Subscriber{Peer: "p1", Service: "svc"}
	r.Listen(sub, []string{"app::a", "app::b"})

	r.ForgetAll(sub)
	assert.Equal(t, 0, r.SubscriberCount())
}

func TestOnEffectiveChangeNotifiesSubscribers(t *testing.T) {
	r := NewRouter(fakeLookup{text: "42", result: settings.Success})
	notifier := &fakeNotifier{}
	r.SetNotifier(notifier)

	sub1 := Subscriber{Peer: "p1", Service: "svc"}
	sub2 := Subscriber{Peer: "p2", Service: "svc"}
	r.Listen(sub1, []string{"app::a"})
	r.Listen(sub2, []string{"app::a"})

	r.OnEffectiveChange("app::a")

	assert.Len(t, notifier.calls, 2)
	for _, call := range notifier.calls {
		assert.Equal(t, "app::a", call.name)
		assert.Equal(t, "42", call.value)
		assert.True(t, call.isSet)
	}
}

func TestOnEffectiveChangeReportsUndefinedValue(t *testing.T) {
	r := NewRouter(fakeLookup{result: settings.Unknown})
	notifier := &fakeNotifier{}
	r.SetNotifier(notifier)

	sub := Subscriber{Peer: "p1", Service: "svc"}
	r.Listen(sub, []string{"app::a"})

	r.OnEffectiveChange("app::a")

	assert.Len(t, notifier.calls, 1)
	assert.False(t, notifier.calls[0].isSet)
}

func TestSubscribersSortedSnapshot(t *testing.T) {
	r := NewRouter(fakeLookup{})
	r.Listen(Subscriber{Peer: "z", Service: "s"}, []string{"app::a"})
	r.Listen(Subscriber{Peer: "a", Service: "s"}, []string{"app::a"})

	subs := r.Subscribers("app::a")
	assert.Equal(t, []Subscriber{{Peer: "a", Service: "s"}, {Peer: "z", Service: "s"}}, subs)
}
