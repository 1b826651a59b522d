package syncer

import (
	"fmt"
	"reflect"
	"testing"
)

func TestPlanPrune(t *testing.T) {
	t.Parallel()

	names := []string{
		"repo-20240110_103000",
		"repo-20240111_103000",
		"repo-20240112_103000",
		"repo-20240113_103000",
	}

	tests := []struct {
		keepLast   int
		wantKeep   []string
		wantDelete []string
	}{
		{keepLast: 2, wantKeep: names[2:], wantDelete: names[:2]},
		{keepLast: 4, wantKeep: names, wantDelete: nil},
		{keepLast: 10, wantKeep: names, wantDelete: nil},
		{keepLast: 0, wantKeep: nil, wantDelete: names},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("keep%d", tt.keepLast), func(t *testing.T) {
			plan := planPrune(names, tt.keepLast)
			if len(plan.Keep) != len(tt.wantKeep) || (len(plan.Keep) > 0 && !reflect.DeepEqual(plan.Keep, tt.wantKeep)) {
				t.Errorf("Keep = %v, want %v", plan.Keep, tt.wantKeep)
			}
			if len(plan.Delete) != len(tt.wantDelete) || (len(plan.Delete) > 0 && !reflect.DeepEqual(plan.Delete, tt.wantDelete)) {
				t.Errorf("Delete = %v, want %v", plan.Delete, tt.wantDelete)
			}
		})
	}
}

func TestPlanPruneArithmetic(t *testing.T) {
	t.Parallel()

	// For N snapshots and keep-count K, exactly max(N-K, 0) oldest are
	// deleted and min(N, K) newest remain.
	for n := 0; n <= 8; n++ {
		var names []string
		for i := 0; i < n; i++ {
			names = append(names, fmt.Sprintf("repo-2024011%d_103000", i))
		}
		for k := 0; k <= 8; k++ {
			plan := planPrune(names, k)

			wantDelete := n - k
			if wantDelete < 0 {
				wantDelete = 0
			}
			wantKeep := n
			if k < n {
				wantKeep = k
			}

			if len(plan.Delete) != wantDelete {
				t.Errorf("N=%d K=%d: len(Delete) = %d, want %d", n, k, len(plan.Delete), wantDelete)
			}
			if len(plan.Keep) != wantKeep {
				t.Errorf("N=%d K=%d: len(Keep) = %d, want %d", n, k, len(plan.Keep), wantKeep)
			}

			// The deleted ones are exactly the oldest.
			for i, name := range plan.Delete {
				if name != names[i] {
					t.Errorf("N=%d K=%d: Delete[%d] = %s, want %s", n, k, i, name, names[i])
				}
			}
		}
	}
}
