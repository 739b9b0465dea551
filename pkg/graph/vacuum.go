// ABOUTME: Background vacuum pass — walks the node and edge id indexes in
// ABOUTME: ascending-id order, reclaiming obsolete version-chain entries (§4.8)

package graph

import (
	"time"

	"github.com/nainya/sombra/pkg/mvcc"
	"github.com/nainya/sombra/pkg/pager"
)

// RunVacuumPass reclaims obsolete version-chain entries for nodes and
// edges, bounded by maxPages and maxMillis. It matches
// maintenance.VacuumFunc's signature and is the VacuumFunc StartMaintenance
// wires into the scheduler.
//
// Each id space keeps its own resume cursor (nodeCursor/edgeCursor) so a
// bounded pass picks up where the last one left off instead of always
// re-walking the same low ids; a cursor that reaches the end of its index
// wraps back to 0, giving every id a turn across enough passes.
func (g *Graph) RunVacuumPass(wg *pager.WriteGuard, maxPages int, maxMillis time.Duration) (pagesReclaimed, versionsGCed int, err error) {
	minActive := g.pager.MinActiveSnapshot()
	var deadline time.Time
	if maxMillis > 0 {
		deadline = time.Now().Add(maxMillis)
	}

	budget := func() bool {
		if maxPages > 0 && pagesReclaimed >= maxPages {
			return false
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		return true
	}

	next, gcErr := vacuumScan(wg, g.nodes, g.nodeCursor, minActive, budget, &pagesReclaimed, &versionsGCed)
	g.nodeCursor = next
	if gcErr != nil {
		return pagesReclaimed, versionsGCed, gcErr
	}

	next, gcErr = vacuumScan(wg, g.edges, g.edgeCursor, minActive, budget, &pagesReclaimed, &versionsGCed)
	g.edgeCursor = next
	return pagesReclaimed, versionsGCed, gcErr
}

// vacuumScan walks mgr's id index starting at cursor, GC'ing every id it
// visits until budget() goes false or the index is exhausted. It returns
// the cursor the next pass should resume from — 0 once this pass reached
// the end of the index, so the next pass starts from the beginning again.
func vacuumScan(wg *pager.WriteGuard, mgr *mvcc.Manager, cursor uint64, minActive uint64, budget func() bool, pagesReclaimed, versionsGCed *int) (nextCursor uint64, err error) {
	exhausted := true
	scanErr := mgr.ScanIDs(wg, cursor, func(id uint64) bool {
		if !budget() {
			exhausted = false
			return false
		}
		freed, removed, gcErr := mgr.GC(wg, id, minActive)
		if gcErr != nil {
			err = gcErr
			exhausted = false
			return false
		}
		*pagesReclaimed += freed
		if freed > 0 || removed {
			*versionsGCed++
		}
		nextCursor = id + 1
		return true
	})
	if err == nil {
		err = scanErr
	}
	if exhausted {
		return 0, err
	}
	return nextCursor, err
}
