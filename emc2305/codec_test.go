package emc2305

import (
	"errors"
	"testing"
)

func TestPercentToPWM(t *testing.T) {
	cases := []struct {
		percent float64
		want    byte
	}{
		{0, 0},
		{100, 255},
		{75, 191}, // truncates, not rounds
		{50, 127},
		{30, 76},
		{0.3, 0},
	}
	for _, c := range cases {
		if got := percentToPWM(c.percent); got != c.want {
			t.Fatalf("percentToPWM(%v) = %d, want %d", c.percent, got, c.want)
		}
	}
}

func TestPercentRoundTrip(t *testing.T) {
	// Truncation costs at most one 1/255 step.
	const step = 100.0 / 255.0
	for p := 0.0; p <= 100.0; p += 2.5 {
		got := pwmToPercent(percentToPWM(p))
		if got > p || p-got > step {
			t.Fatalf("round trip %v -> %v, want within one step below", p, got)
		}
	}
}

func TestRPMToTachCount(t *testing.T) {
	cases := []struct {
		name    string
		rpm     int
		clock   ClockSource
		poles   int
		want    int
		wantErr bool
	}{
		{"3000 internal 2-pole", 3000, ClockInternal, 2, 320, false},
		{"zero parks the fan", 0, ClockInternal, 2, tachCountMax, false},
		{"min internal", 500, ClockInternal, 2, 1920, false},
		{"max internal", 16000, ClockInternal, 2, 60, false},
		{"below range", 499, ClockInternal, 2, 0, true},
		{"above internal range", 16001, ClockInternal, 2, 0, true},
		{"external extends range", 20000, ClockExternal, 2, 49, false},
		{"above external range", 32001, ClockExternal, 2, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := rpmToTachCount(c.rpm, c.clock, c.poles)
			if c.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("want ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("got count %d, want %d", got, c.want)
			}
		})
	}
}

func TestTachCountToRPM(t *testing.T) {
	cases := []struct {
		name    string
		count   int
		edges   int
		clock   ClockSource
		want    int
		wantErr bool
	}{
		{"3000 internal", 320, 5, ClockInternal, 3000, false},
		{"stopped fan", 0, 5, ClockInternal, 0, false},
		{"external clock", 49, 5, ClockExternal, 20062, false},
		{"negative count", -1, 5, ClockInternal, 0, true},
		{"count above 13 bits", tachCountMax + 1, 5, ClockInternal, 0, true},
		{"bad edge count", 320, 4, ClockInternal, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := tachCountToRPM(c.count, c.edges, c.clock)
			if c.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("want ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("got %d RPM, want %d", got, c.want)
			}
		})
	}
}

func TestRPMRoundTripWithinTolerance(t *testing.T) {
	// Integer quantisation: the round trip must stay within 5%.
	for _, rpm := range []int{500, 800, 1500, 3000, 5000, 8000, 12000, 16000} {
		count, err := rpmToTachCount(rpm, ClockInternal, 2)
		if err != nil {
			t.Fatalf("rpm %d: %v", rpm, err)
		}
		back, err := tachCountToRPM(count, 5, ClockInternal)
		if err != nil {
			t.Fatalf("count %d: %v", count, err)
		}
		diff := back - rpm
		if diff < 0 {
			diff = -diff
		}
		if diff*100 > rpm*5 {
			t.Fatalf("rpm %d round-tripped to %d, outside 5%%", rpm, back)
		}
	}
}

func TestClockSource(t *testing.T) {
	if ClockInternal.Hz() != 32000 || ClockInternal.MaxRPM() != 16000 {
		t.Fatalf("internal clock: got %d Hz / %d RPM", ClockInternal.Hz(), ClockInternal.MaxRPM())
	}
	if ClockExternal.Hz() != 32768 || ClockExternal.MaxRPM() != 32000 {
		t.Fatalf("external clock: got %d Hz / %d RPM", ClockExternal.Hz(), ClockExternal.MaxRPM())
	}
}

func TestPWMFreqCode(t *testing.T) {
	cases := []struct {
		req      int
		code     byte
		actualHz int
	}{
		{26000, pwmFreqCode26000, 26000},
		{20000, pwmFreqCode26000, 26000},
		{19999, pwmFreqCode19531, 19531},
		{12000, pwmFreqCode19531, 19531},
		{4882, pwmFreqCode4882, 4882},
		{3500, pwmFreqCode4882, 4882},
		{3499, pwmFreqCode2441, 2441},
		{0, pwmFreqCode2441, 2441},
	}
	for _, c := range cases {
		code, actual := pwmFreqCode(c.req)
		if code != c.code || actual != c.actualHz {
			t.Fatalf("pwmFreqCode(%d) = (0x%02X, %d), want (0x%02X, %d)",
				c.req, code, actual, c.code, c.actualHz)
		}
	}
}

func TestPolesForEdges(t *testing.T) {
	cases := []struct{ edges, poles int }{
		{3, 1}, {5, 2}, {7, 3}, {9, 4},
		{1, 2}, // degenerate input falls back to 2-pole
	}
	for _, c := range cases {
		if got := polesForEdges(c.edges); got != c.poles {
			t.Fatalf("polesForEdges(%d) = %d, want %d", c.edges, got, c.poles)
		}
	}
}
