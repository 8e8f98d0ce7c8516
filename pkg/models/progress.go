package models

// ProgressRecord is the durable per-user accumulator of score, XP and
// served-item history. Score and XP never decrease, used sets only grow.
type ProgressRecord struct {
	UserID        int64
	Score         int
	XP            int
	UsedItems     map[string][]string // category -> item ids in serve order
	ReadingCursor map[string]int      // passage id -> next question index
}

// NewProgressRecord returns a zero-valued record for a user.
func NewProgressRecord(userID int64) *ProgressRecord {
	return &ProgressRecord{
		UserID:        userID,
		UsedItems:     make(map[string][]string),
		ReadingCursor: make(map[string]int),
	}
}

// HasUsed reports whether an item has already been served to the user.
func (r *ProgressRecord) HasUsed(category, itemID string) bool {
	for _, id := range r.UsedItems[category] {
		if id == itemID {
			return true
		}
	}
	return false
}

// MarkUsed records an item as served. Marking twice is a no-op.
func (r *ProgressRecord) MarkUsed(category, itemID string) {
	if r.HasUsed(category, itemID) {
		return
	}
	r.UsedItems[category] = append(r.UsedItems[category], itemID)
}

// AwardCorrect credits one correct answer: +1 score, +10 XP.
func (r *ProgressRecord) AwardCorrect() {
	r.Score++
	r.XP += 10
}
