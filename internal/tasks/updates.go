package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	CheckCooldown Phase = iota
	FetchPage
	StoreMirror
	SyncComplete
	SyncSkipped
)

func (p Phase) String() string {
	switch p {
	case CheckCooldown:
		return "check_cooldown"
	case FetchPage:
		return "fetch_page"
	case StoreMirror:
		return "store_mirror"
	case SyncComplete:
		return "sync_complete"
	case SyncSkipped:
		return "sync_skipped"
	default:
		return ""
	}
}

func checkCooldownUpdate(userID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CheckCooldown,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Checking sync cooldown for %s...", userID),
	}
}

func skippedUpdate(userID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncSkipped,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Liked-track sync for %s still in cooldown, skipping", userID),
	}
}

func fetchPageUpdate(page, fetched, cap int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPage,
		Step:    page,
		Total:   0,
		Message: fmt.Sprintf("Fetching liked tracks page %d (%d/%d)...", page, fetched, cap),
	}
}

func storeMirrorUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StoreMirror,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Storing %d liked tracks...", count),
	}
}

func completeUpdate(count int, truncated bool) ProgressUpdate {
	msg := fmt.Sprintf("Synced %d liked tracks", count)
	if truncated {
		msg += " (library larger than sync cap)"
	}
	return ProgressUpdate{
		Phase:   SyncComplete,
		Step:    1,
		Total:   1,
		Message: msg,
		Data:    count,
	}
}
