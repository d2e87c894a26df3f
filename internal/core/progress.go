package core

import "math"

// Percent returns byteOffset as a percentage of total, truncated to two
// decimal places. It returns 0 when total is unknown.
func Percent(byteOffset, total int64) float64 {
	if total <= 0 || byteOffset <= 0 {
		return 0
	}
	if byteOffset <= math.MaxInt64/10000 {
		return float64(byteOffset*10000/total) / 100
	}
	return math.Trunc(float64(byteOffset)/float64(total)*10000) / 100
}

// NopProgress discards progress notifications.
type NopProgress struct{}

func (NopProgress) Advance(int64) {}
func (NopProgress) Finish()       {}
func (NopProgress) Close() error  { return nil }
