package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	DetectionsReceived    atomic.Int64
	ManualEventsReceived  atomic.Int64
	LowConfidenceDiscards atomic.Int64
	UnknownPlates         atomic.Int64
	MovementsRecorded     atomic.Int64

	AlertsCreated   atomic.Int64
	AlertsRefreshed atomic.Int64
	AlertsResolved  atomic.Int64
	SweepRuns       atomic.Int64
	SweepSkips      atomic.Int64

	MovementChannelDrops  atomic.Int64
	StateChannelDrops     atomic.Int64
	AlertChannelDrops     atomic.Int64
	MovementWriteSuccess  atomic.Int64
	MovementWriteFailures atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "tracking_detections_received_total %d\n", DetectionsReceived.Load())
	fmt.Fprintf(w, "tracking_manual_events_received_total %d\n", ManualEventsReceived.Load())
	fmt.Fprintf(w, "tracking_low_confidence_discards_total %d\n", LowConfidenceDiscards.Load())
	fmt.Fprintf(w, "tracking_unknown_plates_total %d\n", UnknownPlates.Load())
	fmt.Fprintf(w, "tracking_movements_recorded_total %d\n", MovementsRecorded.Load())
	fmt.Fprintf(w, "tracking_alerts_created_total %d\n", AlertsCreated.Load())
	fmt.Fprintf(w, "tracking_alerts_refreshed_total %d\n", AlertsRefreshed.Load())
	fmt.Fprintf(w, "tracking_alerts_resolved_total %d\n", AlertsResolved.Load())
	fmt.Fprintf(w, "tracking_sweep_runs_total %d\n", SweepRuns.Load())
	fmt.Fprintf(w, "tracking_sweep_skips_total %d\n", SweepSkips.Load())
	fmt.Fprintf(w, "tracking_movement_channel_drops_total %d\n", MovementChannelDrops.Load())
	fmt.Fprintf(w, "tracking_state_channel_drops_total %d\n", StateChannelDrops.Load())
	fmt.Fprintf(w, "tracking_alert_channel_drops_total %d\n", AlertChannelDrops.Load())
	fmt.Fprintf(w, "tracking_movement_write_success_total %d\n", MovementWriteSuccess.Load())
	fmt.Fprintf(w, "tracking_movement_write_failures_total %d\n", MovementWriteFailures.Load())
}
