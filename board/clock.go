package board

import (
	"sync/atomic"
	"time"
)

var lastStamp int64

// nextStamp returns a strictly increasing UTC timestamp. Successive writes
// within the same nanosecond tick still observe distinct lastModified values.
func nextStamp() time.Time {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastStamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastStamp, last, now) {
			return time.Unix(0, now).UTC()
		}
	}
}
