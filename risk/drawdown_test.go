package risk

import (
	"testing"
	"time"

	"quantumfx/config"
	"quantumfx/testutils"
)

var testLimits = config.DrawdownLimits{SoftLimit: 0.02, HardLimit: 0.05}

func newTestTracker(equity float64) (*DrawdownTracker, *time.Time, *testutils.MockLogger) {
	log := testutils.NewMockLogger()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)
	tr := &DrawdownTracker{
		log:            log,
		soft:           testLimits.SoftLimit,
		hard:           testLimits.HardLimit,
		dailyHigh:      equity,
		currentEquity:  equity,
		currentBalance: equity,
		now:            func() time.Time { return now },
	}
	tr.lastUpdateDate = dateOf(now)
	return tr, &now, log
}

func TestDailyHighRollsForwardOnly(t *testing.T) {
	tr, _, _ := newTestTracker(10000)
	tr.Update(10500, 10200)
	if h := tr.DailyHigh(); h != 10500 {
		t.Fatalf("expected high 10500, got %v", h)
	}
	tr.Update(10300, 10100)
	if h := tr.DailyHigh(); h != 10500 {
		t.Fatalf("high must never decrease within a day, got %v", h)
	}
	// Balance above equity also lifts the high.
	tr.Update(10400, 10600)
	if h := tr.DailyHigh(); h != 10600 {
		t.Fatalf("expected high 10600 from balance, got %v", h)
	}
}

func TestCheckLimitsSoftAndHard(t *testing.T) {
	tr, now, _ := newTestTracker(10000)

	soft, hard := tr.CheckLimits(9790) // -2.1%
	if !soft || hard {
		t.Fatalf("expected soft breach only, got soft=%v hard=%v", soft, hard)
	}
	*now = now.Add(6 * time.Second)
	soft, hard = tr.CheckLimits(9400) // -6%
	if !soft || !hard {
		t.Fatalf("expected both breaches, got soft=%v hard=%v", soft, hard)
	}
	if dd := tr.MaxDailyDrawdown(); dd > -0.059 {
		t.Fatalf("max daily drawdown should track the worst value, got %v", dd)
	}
}

func TestCheckLimitsThrottled(t *testing.T) {
	tr, now, _ := newTestTracker(10000)
	if soft, hard := tr.CheckLimits(9000); !soft || !hard {
		t.Fatalf("setup: expected breaches, got soft=%v hard=%v", soft, hard)
	}
	*now = now.Add(2 * time.Second)
	if soft, hard := tr.CheckLimits(8000); soft || hard {
		t.Fatal("calls within the check interval must report no breach")
	}
	*now = now.Add(4 * time.Second)
	if soft, hard := tr.CheckLimits(8000); !soft || !hard {
		t.Fatal("breach must be reported again once the interval has passed")
	}
}

func TestCheckLimitsZeroDailyHigh(t *testing.T) {
	tr, _, log := newTestTracker(0)
	soft, hard := tr.CheckLimits(5000)
	if soft || hard {
		t.Fatalf("zero high must not report a breach, got soft=%v hard=%v", soft, hard)
	}
	if log.CountLevel("error") != 1 {
		t.Fatalf("expected one error log, got %d", log.CountLevel("error"))
	}
}

func TestNewDayResetsState(t *testing.T) {
	tr, now, _ := newTestTracker(10000)
	tr.CheckLimits(9000)
	tr.SetProtectionActive(true)
	if !tr.ProtectionActive() {
		t.Fatal("setup: protection should be latched")
	}

	*now = now.Add(24 * time.Hour)
	tr.Update(9000, 9100)

	if h := tr.DailyHigh(); h != 9100 {
		t.Fatalf("new day high should be max(equity, balance)=9100, got %v", h)
	}
	if tr.ProtectionActive() {
		t.Fatal("protection must clear at the day boundary")
	}
	if dd := tr.MaxDailyDrawdown(); dd != 0 {
		t.Fatalf("max daily drawdown must reset, got %v", dd)
	}
}

func TestCheckLimitsNeverSetsProtection(t *testing.T) {
	tr, _, _ := newTestTracker(10000)
	tr.CheckLimits(9700)
	if tr.ProtectionActive() {
		t.Fatal("CheckLimits must not latch protection itself")
	}
}
