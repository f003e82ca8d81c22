package hud

import (
	"testing"
	"time"

	"github.com/jguida941/voiceterm-sub001/internal/config"
	"github.com/jguida941/voiceterm-sub001/internal/termcap"
)

func testState(style config.HudStyle) *State {
	s := config.Defaults()
	s.HudStyle = style
	return NewState(s, Load("slate", termcap.Matrix{}))
}

func TestReservedRowsByStyle(t *testing.T) {
	if got := testState(config.HudFull).ReservedRows(); got != 2 {
		t.Errorf("full = %d, want 2", got)
	}
	if got := testState(config.HudMinimal).ReservedRows(); got != 1 {
		t.Errorf("minimal = %d, want 1", got)
	}
	if got := testState(config.HudHidden).ReservedRows(); got != 0 {
		t.Errorf("hidden idle = %d, want 0", got)
	}
}

func TestHiddenStyleShowsRowWhileRecording(t *testing.T) {
	st := testState(config.HudHidden)
	st.Activity = ActivityRecording
	if got := st.ReservedRows(); got != 1 {
		t.Errorf("hidden recording = %d, want 1", got)
	}
}

func TestDebugKeysAddReservedRow(t *testing.T) {
	st := testState(config.HudFull)
	st.DebugKeys = true
	if got := st.ReservedRows(); got != 3 {
		t.Errorf("full+debug = %d, want 3", got)
	}
	st = testState(config.HudHidden)
	st.DebugKeys = true
	if got := st.ReservedRows(); got != 1 {
		t.Errorf("hidden+debug = %d, want 1", got)
	}
}

func TestAppendDebugKeysBounded(t *testing.T) {
	st := testState(config.HudFull)
	st.DebugKeys = true
	st.RedrawPending = false
	for i := 0; i < 5; i++ {
		st.AppendDebugKeys([]string{"a", "b", "c"})
	}
	if got := len(st.DebugKeyBuf); got != 10 {
		t.Errorf("DebugKeyBuf len = %d, want 10", got)
	}
	if !st.RedrawPending {
		t.Error("AppendDebugKeys did not mark redraw")
	}

	st.DebugKeys = false
	st.DebugKeyBuf = nil
	st.AppendDebugKeys([]string{"x"})
	if len(st.DebugKeyBuf) != 0 {
		t.Error("keys recorded while debug view disabled")
	}
}

func TestApprovalSuppressionZeroesRows(t *testing.T) {
	st := testState(config.HudFull)
	st.ApprovalSuppressed = true
	if got := st.ReservedRows(); got != 0 {
		t.Errorf("suppressed = %d, want 0", got)
	}
}

func TestStatusExpiry(t *testing.T) {
	st := testState(config.HudFull)
	st.SetStatus("hello", SeverityInfo, time.Millisecond)
	if st.Status.Text != "hello" {
		t.Fatalf("Status = %+v", st.Status)
	}
	if !st.ExpireStatus(time.Now().Add(time.Second)) {
		t.Fatal("ExpireStatus did not fire")
	}
	if st.Status.Text != "" {
		t.Errorf("Status = %q after expiry", st.Status.Text)
	}
}

func TestStickyStatusNeverExpires(t *testing.T) {
	st := testState(config.HudFull)
	st.SetStatus("working", SeverityInfo, 0)
	if st.ExpireStatus(time.Now().Add(time.Hour)) {
		t.Error("sticky status expired")
	}
}

func TestSnapshotIsolatesRings(t *testing.T) {
	st := testState(config.HudFull)
	st.Meter.Push(-30)
	snap := st.Snapshot()
	st.Meter.Push(-10)

	if got := len(snap.Meter.Values()); got != 1 {
		t.Errorf("snapshot ring len = %d, want 1", got)
	}
	if got := len(st.Meter.Values()); got != 2 {
		t.Errorf("live ring len = %d, want 2", got)
	}
}

func TestMeterRingBounded(t *testing.T) {
	r := NewMeterRing(4)
	for i := 0; i < 10; i++ {
		r.Push(float64(-i))
	}
	if got := len(r.Values()); got != 4 {
		t.Errorf("len = %d, want 4", got)
	}
	if r.Last() != -9 {
		t.Errorf("Last = %v, want -9", r.Last())
	}
}

func TestLatencyRingBounded(t *testing.T) {
	r := NewLatencyRing(3)
	for i := 1; i <= 5; i++ {
		r.Push(i * 100)
	}
	if got := len(r.Values()); got != 3 {
		t.Errorf("len = %d, want 3", got)
	}
	if r.Last() != 500 {
		t.Errorf("Last = %d, want 500", r.Last())
	}
}

func TestNextTheme(t *testing.T) {
	seen := map[string]bool{}
	name := "slate"
	for i := 0; i < 3; i++ {
		seen[name] = true
		name = NextTheme(name)
	}
	if name != "slate" {
		t.Errorf("cycle did not return to slate, got %q", name)
	}
	if len(seen) != 3 {
		t.Errorf("cycle visited %d themes, want 3", len(seen))
	}
}
