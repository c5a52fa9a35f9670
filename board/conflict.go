package board

import "time"

// CheckConflict gates an update against concurrent modification. The client
// sends the lastModified timestamp it observed when it last fetched the task;
// if the persisted record has moved past that point the write is rejected
// with ErrStaleWrite and the client must re-fetch and retry. A nil
// clientLastFetched skips the check entirely (creation path, or a client that
// never tracked the timestamp).
func CheckConflict(clientLastFetched *time.Time, storeLastModified time.Time) error {
	if clientLastFetched == nil {
		return nil
	}
	if storeLastModified.After(*clientLastFetched) {
		return ErrStaleWrite
	}
	return nil
}
