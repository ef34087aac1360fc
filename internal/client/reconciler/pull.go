package reconciler

import (
	"context"

	"github.com/go-signup-session/internal/domain"
)

// schedulePullLocked arranges one tier pull for the authentication at epoch ep.
func (r *Reconciler) schedulePullLocked(ep uint64, uid string) {
	r.cancelPullLocked()
	r.stopPull = r.sched.AfterFunc(r.settle, func() { r.pull(ep, uid) })
}

func (r *Reconciler) cancelPullLocked() {
	if r.stopPull != nil {
		r.stopPull()
		r.stopPull = nil
	}
}

func (r *Reconciler) pull(ep uint64, uid string) {
	r.mu.Lock()
	current := ep == r.epoch && r.state == StateAuthenticated && r.user != nil && r.user.ID == uid
	if current {
		r.stopPull = nil
	}
	r.mu.Unlock()
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	fresh, err := r.backend.CurrentUser(ctx)
	cancel()
	if err != nil {
		r.log.Warn("tier reconciliation failed, keeping cached user", "uid", uid, "err", err)
		return
	}
	r.applyPulled(ep, uid, fresh)
}

// applyPulled overwrites the tier-affecting fields of the cached user with
// fresh ones if the authentication at ep is still current.
func (r *Reconciler) applyPulled(ep uint64, uid string, fresh *domain.UserSnapshot) {
	if fresh == nil {
		return
	}
	r.mu.Lock()
	if ep != r.epoch || r.state != StateAuthenticated || r.user == nil || r.user.ID != uid || fresh.ID != uid {
		r.mu.Unlock()
		return
	}
	changed := r.user.Tier != fresh.Tier || r.user.Quota != fresh.Quota || r.user.Capabilities != fresh.Capabilities
	if changed {
		r.user.Tier = fresh.Tier
		r.user.Quota = fresh.Quota
		r.user.Capabilities = fresh.Capabilities
	}
	r.mu.Unlock()
	if changed {
		r.log.Info("tier reconciled", "uid", uid, "tier", fresh.Tier)
		r.notify()
	}
}
