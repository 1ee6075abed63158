package calendar

import (
	"fmt"
	"time"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

// transition moves st to `to` or fails with ErrInvalidTransition. Fields that
// only make sense in the old state are cleared.
func transition(st *entity.CalendarSyncState, to constants.ConnectionStatus, now time.Time) error {
	from := st.Status
	if !constants.CanTransition(from, to) {
		return common.NewAppError("INVALID_TRANSITION",
			fmt.Sprintf("calendar connection cannot move from %s to %s", from, to), common.ErrInvalidTransition)
	}
	st.Status = to
	switch to {
	case constants.StatusPendingAuthorization:
		t := now.UTC()
		st.PendingSince = &t
	case constants.StatusConnected:
		st.PendingSince = nil
	case constants.StatusDisconnected:
		st.PendingSince = nil
		st.Credential = nil
	}
	return nil
}

// pendingExpired reports whether a pending authorization has outlived window.
func pendingExpired(st *entity.CalendarSyncState, window time.Duration, now time.Time) bool {
	if st.Status != constants.StatusPendingAuthorization {
		return false
	}
	if st.PendingSince == nil {
		return true
	}
	return now.Sub(*st.PendingSince) > window
}
