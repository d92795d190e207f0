package device

import (
	"context"
	"sync"
	"time"
)

// SetStreaming turns camera streaming on or off.
func (h *Handle) SetStreaming(ctx context.Context, on bool) error {
	if h.kind != KindCamera {
		return ErrUnsupportedCommand
	}
	return h.SendCommand(ctx, AttrIsStreaming, on)
}

// MotionEvent is a derived camera event: activity started or stopped.
type MotionEvent struct {
	DeviceID  string
	Started   bool
	StartTime time.Time
	EndTime   time.Time
	HasMotion bool
	HasSound  bool
	HasPerson bool
	ImageURL  string
}

// LastEventTracker turns successive last_event values into started and
// stopped events. An event whose end time is after its start time has
// stopped. The first value observed only primes the tracker, and each
// distinct start or end time is reported once.
type LastEventTracker struct {
	mu        sync.Mutex
	primed    bool
	lastStart time.Time
	lastEnd   time.Time
}

// Observe feeds one last_event value. It returns the derived event and
// true when one should be reported.
func (t *LastEventTracker) Observe(deviceID string, lastEvent any) (MotionEvent, bool) {
	m, ok := lastEvent.(map[string]any)
	if !ok {
		return MotionEvent{}, false
	}
	start, okStart := parseTime(m["start_time"])
	end, _ := parseTime(m["end_time"])
	if !okStart {
		return MotionEvent{}, false
	}

	ev := MotionEvent{
		DeviceID:  deviceID,
		StartTime: start,
		EndTime:   end,
		Started:   !end.After(start),
	}
	ev.HasMotion, _ = m["has_motion"].(bool)
	ev.HasSound, _ = m["has_sound"].(bool)
	ev.HasPerson, _ = m["has_person"].(bool)
	ev.ImageURL, _ = m["image_url"].(string)

	t.mu.Lock()
	defer t.mu.Unlock()

	report := false
	if t.primed {
		if ev.Started {
			report = !t.lastStart.Equal(start)
		} else {
			report = !t.lastEnd.Equal(end)
		}
	}
	t.primed = true
	t.lastStart = start
	t.lastEnd = end
	return ev, report
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
