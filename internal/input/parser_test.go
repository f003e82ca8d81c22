package input

import (
	"bytes"
	"math/rand"
	"testing"
)

func feedAll(p *Parser, chunks ...[]byte) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, p.Feed(c)...)
	}
	return events
}

func TestPlainBytesPassThrough(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("hello"))
	if len(events) != 1 || events[0].Kind != EvBytes {
		t.Fatalf("events = %+v", events)
	}
	if string(events[0].Bytes) != "hello" {
		t.Errorf("bytes = %q", events[0].Bytes)
	}
}

func TestCtrlHotkeys(t *testing.T) {
	tests := []struct {
		b    byte
		want Hotkey
	}{
		{0x12, HotkeyVoiceToggle},
		{0x05, HotkeySendNow},
		{0x16, HotkeySendMode},
		{0x14, HotkeyModeCycle},
		{0x15, HotkeyHudStyle},
		{0x19, HotkeyThemeStudio},
		{0x07, HotkeyThemeCycle},
		{0x0F, HotkeySettings},
		{0x08, HotkeyTranscripts},
		{0x0E, HotkeyNotifications},
		{0x04, HotkeyDevPanel},
	}
	for _, tt := range tests {
		p := NewParser()
		events := p.Feed([]byte{tt.b})
		if len(events) != 1 || events[0].Kind != EvHotkey || events[0].Hotkey != tt.want {
			t.Errorf("byte %#x: events = %+v, want hotkey %v", tt.b, events, tt.want)
		}
	}
}

func TestHelpKey(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("?"))
	if len(events) != 1 || events[0].Hotkey != HotkeyHelp {
		t.Fatalf("events = %+v", events)
	}
}

// Scenario: ESC [ < 0 ; 10 ; 20 arrives, then M later. No bytes may leak;
// one press event results.
func TestPartialSGRMouseAcrossReads(t *testing.T) {
	p := NewParser()
	p.SetSuppressArrows(false)

	events := p.Feed([]byte("\x1b[<0;10;20"))
	if len(events) != 0 {
		t.Fatalf("partial sequence leaked events: %+v", events)
	}
	if len(p.Pending()) == 0 {
		t.Fatal("expected buffered partial sequence")
	}

	events = p.Feed([]byte("M"))
	if len(events) != 1 || events[0].Kind != EvMouse {
		t.Fatalf("events = %+v, want one mouse event", events)
	}
	m := events[0].Mouse
	if !m.Press || m.X != 10 || m.Y != 20 || m.Button != 0 {
		t.Errorf("mouse = %+v", m)
	}
}

func TestSGRWheelDropped(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("\x1b[<64;1;1M"))
	if len(events) != 0 {
		t.Errorf("wheel event should be dropped, got %+v", events)
	}
}

func TestSGRReleaseEvent(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("\x1b[<0;3;4m"))
	if len(events) != 1 || events[0].Kind != EvMouse || events[0].Mouse.Press {
		t.Fatalf("events = %+v, want one release", events)
	}
}

func TestX10Mouse(t *testing.T) {
	p := NewParser()
	// ESC [ M, button 0, x=1, y=2 (all +32).
	events := p.Feed([]byte{0x1B, '[', 'M', 32, 33, 34})
	if len(events) != 1 || events[0].Kind != EvMouse {
		t.Fatalf("events = %+v", events)
	}
	if m := events[0].Mouse; m.X != 1 || m.Y != 2 || !m.Press {
		t.Errorf("mouse = %+v", m)
	}
}

func TestURXVTMouse(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("\x1b[32;5;6M"))
	if len(events) != 1 || events[0].Kind != EvMouse {
		t.Fatalf("events = %+v", events)
	}
	if m := events[0].Mouse; m.X != 5 || m.Y != 6 || !m.Press {
		t.Errorf("mouse = %+v", m)
	}
}

func TestFocusEvents(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("\x1b[I\x1b[O"))
	if len(events) != 2 || events[0].Kind != EvFocusGain || events[1].Kind != EvFocusLoss {
		t.Fatalf("events = %+v", events)
	}
}

func TestArrowSuppressionAtStartup(t *testing.T) {
	p := NewParser()
	if events := p.Feed([]byte("\x1b[A\x1b[1;1:3A\x1bOB")); len(events) != 0 {
		t.Fatalf("suppressed arrows leaked: %+v", events)
	}

	p.SetSuppressArrows(false)
	events := p.Feed([]byte("\x1b[A"))
	if len(events) != 1 || events[0].Kind != EvBytes || !bytes.Equal(events[0].Bytes, []byte("\x1b[A")) {
		t.Fatalf("events = %+v, want forwarded arrow", events)
	}
}

func TestColonParameterizedArrowForwarded(t *testing.T) {
	p := NewParser()
	p.SetSuppressArrows(false)
	events := p.Feed([]byte("\x1b[1;1:3A"))
	if len(events) != 1 || !bytes.Equal(events[0].Bytes, []byte("\x1b[1;1:3A")) {
		t.Fatalf("events = %+v", events)
	}
}

func TestCSIuForwardedWhole(t *testing.T) {
	p := NewParser()
	events := feedAll(p, []byte("\x1b[114;"), []byte("5u"))
	if len(events) != 1 || !bytes.Equal(events[0].Bytes, []byte("\x1b[114;5u")) {
		t.Fatalf("events = %+v", events)
	}
}

// Parsing arbitrary bytes at arbitrary splits must never panic.
func TestArbitrarySplitsNoPanic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		buf := make([]byte, rng.Intn(256))
		for i := range buf {
			buf[i] = byte(rng.Intn(256))
		}
		p := NewParser()
		for len(buf) > 0 {
			n := rng.Intn(len(buf)) + 1
			p.Feed(buf[:n])
			buf = buf[n:]
		}
	}
}
