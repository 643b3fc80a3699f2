package someip

import (
	"math"
	"time"
)

// TTLInfinite is the resolved value of the SD TTL 0xFFFFFF: the offer or
// subscription never expires on its own.
const TTLInfinite time.Duration = math.MaxInt64

// TTLMax is the largest finite SD TTL in seconds (24 bits, 0xFFFFFF means
// infinite).
const TTLMax = 0xFFFFFE

// ResolveTTL converts an SD TTL field in seconds to a duration.
func ResolveTTL(seconds uint32) time.Duration {
	if seconds > TTLMax {
		return TTLInfinite
	}
	return time.Duration(seconds) * time.Second
}
