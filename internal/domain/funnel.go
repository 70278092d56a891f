package domain

// FunnelStageStats is the per-stage counters the batch funnel exposes for
// an external dashboard: how many candidates entered, survived, and
// were eliminated by this stage's policy.
type FunnelStageStats struct {
	Stage      int
	Name       string
	Processed  int
	Qualified  int
	Eliminated int
}

// FunnelRun is one end-to-end execution of the 6-stage funnel over a
// candidate wallet set.
type FunnelRun struct {
	RunID   string
	Stages  [6]FunnelStageStats
	Started bool
	Done    bool
}
