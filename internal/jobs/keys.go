package jobs

import "framecast/internal/models"

// Each job lives under exactly one of these keys at a time.
func PendingKey(jobID string) string { return recordKey(models.StatusPending, jobID) }
func ErrorKey(jobID string) string   { return recordKey(models.StatusError, jobID) }
func DoneKey(jobID string) string    { return recordKey(models.StatusDone, jobID) }

func recordKey(status, jobID string) string {
	return status + ":" + jobID
}

// readOrder is the order status reads probe keys in; the first hit wins.
var readOrder = []string{models.StatusPending, models.StatusError, models.StatusDone}
