package reconciler

import (
	"encoding/json"
	"time"
)

const lockKey = "logout_lock"

// lockRecord is the persisted logout lock. Times are wall-clock so the lock
// keeps its meaning across restarts.
type lockRecord struct {
	SetAt int64 `json:"set_at_ms"`
	TTL   int64 `json:"ttl_ms"`
}

func (l lockRecord) expiresAt() time.Time {
	return time.UnixMilli(l.SetAt).Add(time.Duration(l.TTL) * time.Millisecond)
}

func (r *Reconciler) writeLock() {
	b, err := json.Marshal(lockRecord{SetAt: r.now().UnixMilli(), TTL: r.lockTTL.Milliseconds()})
	if err == nil {
		err = r.locks.Set(lockKey, b)
	}
	if err != nil {
		r.log.Error("failed to persist logout lock", "err", err)
	}
}

// lockActive reports whether an unexpired logout lock exists, deleting an
// expired or unreadable one.
func (r *Reconciler) lockActive() bool {
	b, ok, err := r.locks.Get(lockKey)
	if err != nil {
		r.log.Warn("failed to read logout lock", "err", err)
		return false
	}
	if !ok {
		return false
	}
	var rec lockRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		r.log.Warn("discarding malformed logout lock", "err", err)
		r.clearLock()
		return false
	}
	if r.now().Before(rec.expiresAt()) {
		return true
	}
	r.clearLock()
	return false
}

func (r *Reconciler) clearLock() {
	if err := r.locks.Delete(lockKey); err != nil {
		r.log.Warn("failed to clear logout lock", "err", err)
	}
}
