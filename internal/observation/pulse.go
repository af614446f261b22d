package observation

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

// DefaultPulseDuration is how long an alarm pulse stays on.
const DefaultPulseDuration = 3 * time.Second

// AlarmCategory groups the alarm names that drive one pulse.
type AlarmCategory struct {
	Key     string
	Name    string
	Icon    string
	Matches []string
}

// Match reports whether alarmName belongs to the category.
func (c AlarmCategory) Match(alarmName string) bool {
	return slices.Contains(c.Matches, alarmName)
}

// AlarmCategories lists the alarm categories the HP7 reports. Each alarm
// name appears in at most one category.
var AlarmCategories = []AlarmCategory{
	{
		Key:     "smart_detection_alarm",
		Name:    "Smart Detection Alarm",
		Icon:    "mdi:run",
		Matches: []string{"Smart Detection Alarm"},
	},
	{
		Key:     "intelligent_detection_alarm",
		Name:    "Intelligent Detection Alarm",
		Icon:    "mdi:account-search",
		Matches: []string{"Intelligent Detection Alarm"},
	},
	{
		Key:     "doorbell_ringing",
		Name:    "Doorbell Ringing",
		Icon:    "mdi:doorbell",
		Matches: []string{"Your doorbell is ringing"},
	},
	{
		Key:     "gate_open",
		Name:    "Gate Opened",
		Icon:    "mdi:gate-open",
		Matches: []string{"EZVIZ app open the gate", "Monitor open the gate"},
	},
	{
		Key:     "unlock_lock",
		Name:    "Lock Unlocked",
		Icon:    "mdi:lock-open-variant",
		Matches: []string{"EZVIZ app unlock the lock", "Monitor unlock the lock"},
	},
}

// AlarmCategoryByKey returns the alarm category with the given key.
func AlarmCategoryByKey(key string) (AlarmCategory, bool) {
	for _, c := range AlarmCategories {
		if c.Key == key {
			return c, true
		}
	}
	return AlarmCategory{}, false
}

// AlarmPulse turns repeated "last alarm" readings into a short on-pulse.
//
// It switches on when a snapshot carries an alarm name of its category
// with an alarm time it has not consumed yet, and switches off after the
// pulse duration. A snapshot repeating the consumed alarm time neither
// restarts nor extends the pulse. The off transition is computed lazily
// on read and also announced by a timer, which is replaced on every
// trigger and cancelled by Close.
type AlarmPulse struct {
	category AlarmCategory
	pulse    time.Duration
	clock    Clock
	onChange func(on bool)

	mu          sync.Mutex
	lastTrigger *time.Time
	consumed    *string
	timer       Timer
	generation  uint64
	closed      bool
}

// NewAlarmPulse creates an idle pulse for category. onChange, if non-nil,
// is called outside the lock with true on each trigger and false when the
// pulse timer expires.
func NewAlarmPulse(category AlarmCategory, pulse time.Duration, clock Clock, onChange func(on bool)) *AlarmPulse {
	if pulse <= 0 {
		pulse = DefaultPulseDuration
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &AlarmPulse{
		category: category,
		pulse:    pulse,
		clock:    clock,
		onChange: onChange,
	}
}

// Category returns the pulse's alarm category.
func (p *AlarmPulse) Category() AlarmCategory {
	return p.category
}

// Observe feeds a snapshot to the pulse and reports whether it triggered.
func (p *AlarmPulse) Observe(snap status.Snapshot) bool {
	name, _ := snap.String(status.FieldAlarmName)
	if !p.category.Match(name) {
		return false
	}
	alarmTime, ok := alarmTimeKey(snap.Get(status.FieldLastAlarmTime))
	if !ok {
		return false
	}

	p.mu.Lock()
	if p.closed || (p.consumed != nil && *p.consumed == alarmTime) {
		p.mu.Unlock()
		return false
	}

	p.consumed = &alarmTime
	now := p.clock.Now()
	p.lastTrigger = &now

	if p.timer != nil {
		p.timer.Stop()
	}
	p.generation++
	gen := p.generation
	p.timer = p.clock.AfterFunc(p.pulse, func() { p.expire(gen) })
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(true)
	}
	return true
}

// expire handles the reset timer of trigger generation gen. A timer that
// fires after being superseded is ignored.
func (p *AlarmPulse) expire(gen uint64) {
	p.mu.Lock()
	if p.closed || gen != p.generation {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(false)
	}
}

// IsOn reports whether the pulse is active now.
func (p *AlarmPulse) IsOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTrigger != nil && p.clock.Now().Sub(*p.lastTrigger) < p.pulse
}

// LastTrigger returns when the pulse last switched on.
func (p *AlarmPulse) LastTrigger() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastTrigger == nil {
		return time.Time{}, false
	}
	return *p.lastTrigger, true
}

// Close cancels the pending reset timer. A closed pulse ignores further
// snapshots.
func (p *AlarmPulse) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// alarmTimeKey renders the alarm time for de-duplication.
func alarmTimeKey(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	default:
		return fmt.Sprint(x), true
	}
}
