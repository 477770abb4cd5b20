package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// BuildDeviceContext formats recent vitals and alerts for one device as a
// plain-text block. The conversational assistant is an external collaborator;
// this is the only shape the core owes it.
func BuildDeviceContext(deviceID string, records []HotRecord, alerts []AlertRecord) string {
	if len(records) == 0 {
		return fmt.Sprintf("No recent data found for %s.", deviceID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- TELEMETRY LOG FOR %s ---\n", deviceID)
	for _, r := range records {
		fmt.Fprintf(&b, "Time: %s, HR: %d bpm, SPO2: %g%%\n",
			r.Timestamp.Format(time.RFC3339), r.HeartRate, r.SpO2)
	}

	b.WriteString("\n--- RECENT ALERTS ---\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "Time: %s, Risk: %s, Score: %.4f\n",
			a.DetectedAt.Format(time.RFC3339), a.RiskLevel, a.AnomalyScore)
	}
	return b.String()
}
