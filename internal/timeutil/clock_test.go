package timeutil

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestRealClockNow(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v outside [%v, %v]", got, before, after)
	}
}

func TestRealClockTimerFires(t *testing.T) {
	timer := RealClock{}.NewTimer(time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestRealClockTickerFires(t *testing.T) {
	ticker := RealClock{}.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not tick")
	}
}

func TestMockClockNowSetAdvance(t *testing.T) {
	c := NewMockClock(epoch)
	if !c.Now().Equal(epoch) {
		t.Errorf("Now() = %v, want %v", c.Now(), epoch)
	}

	c.Advance(5 * time.Minute)
	if want := epoch.Add(5 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("after Advance: %v, want %v", c.Now(), want)
	}

	jump := epoch.Add(24 * time.Hour)
	c.Set(jump)
	if !c.Now().Equal(jump) {
		t.Errorf("after Set: %v, want %v", c.Now(), jump)
	}
}

func TestMockClockSinceUntil(t *testing.T) {
	c := NewMockClock(epoch.Add(time.Hour))
	if got := c.Since(epoch); got != time.Hour {
		t.Errorf("Since = %v, want 1h", got)
	}
	if got := c.Until(epoch.Add(2 * time.Hour)); got != time.Hour {
		t.Errorf("Until = %v, want 1h", got)
	}
}

func TestMockClockSleepRecords(t *testing.T) {
	c := NewMockClock(epoch)
	c.Sleep(time.Second)
	c.Sleep(2 * time.Second)
	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Errorf("Sleeps = %v, want [1s 2s]", sleeps)
	}
}

func TestMockTimerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(epoch)
	timer := c.NewTimer(10 * time.Minute)

	c.Advance(5 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	c.Advance(5 * time.Minute)
	select {
	case got := <-timer.C():
		if want := epoch.Add(10 * time.Minute); !got.Equal(want) {
			t.Errorf("fired at %v, want %v", got, want)
		}
	default:
		t.Fatal("timer did not fire at its deadline")
	}

	// Single-shot: a further advance must not fire again.
	c.Advance(10 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("timer fired twice")
	default:
	}
}

func TestMockTimerStop(t *testing.T) {
	c := NewMockClock(epoch)
	timer := c.NewTimer(time.Minute)
	if !timer.Stop() {
		t.Error("Stop on a pending timer should report active")
	}
	c.Advance(2 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
	if timer.Stop() {
		t.Error("second Stop should report inactive")
	}
}

func TestMockTickerFiresEachInterval(t *testing.T) {
	c := NewMockClock(epoch)
	ticker := c.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for i := 1; i <= 3; i++ {
		c.Advance(5 * time.Minute)
		select {
		case got := <-ticker.C():
			if want := epoch.Add(time.Duration(i) * 5 * time.Minute); !got.Equal(want) {
				t.Errorf("tick %d at %v, want %v", i, got, want)
			}
		default:
			t.Fatalf("no tick after advance %d", i)
		}
	}
}

func TestMockTickerStop(t *testing.T) {
	c := NewMockClock(epoch)
	ticker := c.NewTicker(time.Minute)
	ticker.Stop()
	c.Advance(5 * time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker ticked")
	default:
	}
}

func TestMockTickerTrigger(t *testing.T) {
	c := NewMockClock(epoch)
	ticker := c.NewTicker(time.Hour).(*MockTicker)
	ticker.Trigger(epoch)
	select {
	case got := <-ticker.C():
		if !got.Equal(epoch) {
			t.Errorf("triggered tick at %v, want %v", got, epoch)
		}
	default:
		t.Fatal("Trigger delivered nothing")
	}
}

func TestMockClockAfter(t *testing.T) {
	c := NewMockClock(epoch)
	ch := c.After(time.Minute)
	c.Advance(time.Minute)
	select {
	case <-ch:
	default:
		t.Fatal("After channel did not fire")
	}
}
