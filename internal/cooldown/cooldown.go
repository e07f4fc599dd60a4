// Package cooldown gates attendance events per subject: after an accepted
// write, further events for the same template id are rejected until the
// window elapses.
package cooldown

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// Tracker is a per-subject time gate. Entries expire on their own via the
// cache janitor, so the map stays bounded even for subjects that are never
// checked again.
type Tracker struct {
	window  time.Duration
	entries *cache.Cache
}

// New creates a tracker with the given window (60s in production).
func New(window time.Duration) *Tracker {
	return &Tracker{
		window:  window,
		entries: cache.New(window, 2*window),
	}
}

// Check reports whether the subject may proceed. When the subject is still
// inside the window it returns ok=false and the remaining wait; expired
// entries count as absent.
func (t *Tracker) Check(templateID int) (wait time.Duration, ok bool) {
	v, found := t.entries.Get(strconv.Itoa(templateID))
	if !found {
		return 0, true
	}
	elapsed := time.Since(v.(time.Time))
	if elapsed >= t.window {
		t.entries.Delete(strconv.Itoa(templateID))
		return 0, true
	}
	return t.window - elapsed, false
}

// Mark records an accepted attendance write for the subject. The entry's
// TTL is the cooldown window itself.
func (t *Tracker) Mark(templateID int) {
	t.entries.Set(strconv.Itoa(templateID), time.Now(), t.window)
}
