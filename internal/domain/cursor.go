package domain

// Cursor is a monotonically increasing per-consumer position into the
// live_trades table, persisted so an independent tailing consumer
// (the insider scorer, a batch-funnel step) survives restart without
// reprocessing or skipping rows.
type Cursor struct {
	Name     string // e.g. "insider_scorer", "funnel_step1"
	Position int64
}
