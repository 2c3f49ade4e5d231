// Package twin keeps a service job and its governance work order
// converged: it creates the work order twin at most once and propagates
// status changes across the pair through per-direction mapping tables.
package twin

import (
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/workorder"
)

// JobToWorkOrder maps service job statuses onto work order statuses.
// The table is total over the job lifecycle and monotone with respect to
// the draft to active to closed ordering on both sides.
var JobToWorkOrder = map[servicejob.Status]workorder.Status{
	servicejob.StatusSubmitted:  workorder.StatusDraft,
	servicejob.StatusTriaged:    workorder.StatusApproved,
	servicejob.StatusScheduled:  workorder.StatusScheduled,
	servicejob.StatusInProgress: workorder.StatusInProgress,
	servicejob.StatusOnHold:     workorder.StatusOnHold,
	servicejob.StatusCompleted:  workorder.StatusCompleted,
	servicejob.StatusCancelled:  workorder.StatusCancelled,
	servicejob.StatusClosed:     workorder.StatusClosed,
}

// WorkOrderToJob maps work order statuses onto service job statuses.
// The table is partial: DRAFT, APPROVED and CLOSED are
// governance-internal states and never propagate to the operations side.
var WorkOrderToJob = map[workorder.Status]servicejob.Status{
	workorder.StatusScheduled:  servicejob.StatusScheduled,
	workorder.StatusInProgress: servicejob.StatusInProgress,
	workorder.StatusOnHold:     servicejob.StatusOnHold,
	workorder.StatusCompleted:  servicejob.StatusCompleted,
	workorder.StatusCancelled:  servicejob.StatusCancelled,
}

// MapJobStatus returns the work order status a job status projects to,
// and whether the projection is defined.
func MapJobStatus(s servicejob.Status) (workorder.Status, bool) {
	mapped, ok := JobToWorkOrder[s]
	return mapped, ok
}

// MapWorkOrderStatus returns the service job status a work order status
// projects to, and whether the projection is defined.
func MapWorkOrderStatus(s workorder.Status) (servicejob.Status, bool) {
	mapped, ok := WorkOrderToJob[s]
	return mapped, ok
}
