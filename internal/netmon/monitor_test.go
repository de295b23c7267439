package netmon

import (
	"testing"
	"time"

	"github.com/perkshq/perks/internal/bus"
	"go.uber.org/zap"
)

func TestStartsOffline(t *testing.T) {
	m := New(bus.New(), zap.NewNop())
	if m.Online() {
		t.Error("monitor should start offline")
	}
}

func TestSetOnlinePublishesTransitions(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("net.", 10)
	defer unsub()

	m := New(b, zap.NewNop())
	m.SetOnline(true)

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindNetOnline {
			t.Errorf("kind = %q, want net.online", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for net.online")
	}

	m.SetOnline(false)
	select {
	case evt := <-ch:
		if evt.Kind != bus.KindNetOffline {
			t.Errorf("kind = %q, want net.offline", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for net.offline")
	}
}

func TestRepeatedNotificationsDoNotRepublish(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("net.", 10)
	defer unsub()

	m := New(b, zap.NewNop())
	m.SetOnline(true)
	<-ch
	m.SetOnline(true)

	select {
	case evt := <-ch:
		t.Errorf("unexpected event on repeated notify: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestReportUnreachable(t *testing.T) {
	m := New(bus.New(), zap.NewNop())
	m.SetOnline(true)
	m.ReportUnreachable()
	if m.Online() {
		t.Error("ReportUnreachable should flip monitor offline")
	}
}
