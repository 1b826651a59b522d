package syncer

// PrunePlan splits a repository's snapshots into the ones to keep and the
// ones eligible for deletion.
type PrunePlan struct {
	Keep   []string
	Delete []string
}

// planPrune windows snapshots by the keep-last rule. names must be ordered
// oldest first; exactly max(len-keepLast, 0) oldest names land in Delete and
// min(len, keepLast) newest in Keep.
func planPrune(names []string, keepLast int) PrunePlan {
	if len(names) <= keepLast {
		return PrunePlan{Keep: names}
	}
	cut := len(names) - keepLast
	return PrunePlan{
		Keep:   names[cut:],
		Delete: names[:cut],
	}
}
