package dto

// Accepted session length in seconds.
const (
	MinDuration = 5
	MaxDuration = 7200
)

// ClampDuration pulls operator input into [MinDuration, MaxDuration].
func ClampDuration(seconds int) int {
	if seconds < MinDuration {
		return MinDuration
	}
	if seconds > MaxDuration {
		return MaxDuration
	}
	return seconds
}
