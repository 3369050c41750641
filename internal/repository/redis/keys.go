package redis

import "fmt"

const ns = "seatbook:v1"

func KeySeatMap() string {
	return ns + ":seats:map"
}

func KeySeatCounts() string {
	return ns + ":seats:counts"
}

// KeySeatGeneration counts seat inventory commits seen by the cache.
func KeySeatGeneration() string {
	return ns + ":seats:gen"
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelSeatsChanged() string {
	return ns + ":seats:changed"
}
