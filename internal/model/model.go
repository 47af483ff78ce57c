package model

// Topics sent by the print host that get a dedicated text rendering.
// Any other topic passes through unclassified.
const (
	TopicPrintStarted  = "Print Started"
	TopicPrintProgress = "Print Progress"
	TopicPrintDone     = "Print Done"
)

// JobState is the normalized status of the current print job.
// Every field is nullable; a nil pointer means the print host did not
// report the value.
type JobState struct {
	Topic              *string  `json:"topic"`
	Message            *string  `json:"message"`
	State              *string  `json:"state"`
	CurrentZ           *float64 `json:"current_z"`
	MaxZ               *float64 `json:"max_z"`
	EstimatedPrintTime *float64 `json:"estimated_print_time"`
	PercentDone        *float64 `json:"percent_done"`
	ElapsedPrintTime   *float64 `json:"elapsed_print_time"`
	CurrentTime        *int64   `json:"current_time"`
}

// TopicIs reports whether the state carries the given topic.
func (s JobState) TopicIs(topic string) bool {
	return s.Topic != nil && *s.Topic == topic
}

// Clone returns a deep copy so callers can hold a state without sharing
// pointers with the store.
func (s JobState) Clone() JobState {
	return JobState{
		Topic:              cloneOf(s.Topic),
		Message:            cloneOf(s.Message),
		State:              cloneOf(s.State),
		CurrentZ:           cloneOf(s.CurrentZ),
		MaxZ:               cloneOf(s.MaxZ),
		EstimatedPrintTime: cloneOf(s.EstimatedPrintTime),
		PercentDone:        cloneOf(s.PercentDone),
		ElapsedPrintTime:   cloneOf(s.ElapsedPrintTime),
		CurrentTime:        cloneOf(s.CurrentTime),
	}
}

func cloneOf[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Handy for building states in callers and tests.
func Ptr[T any](v T) *T {
	return &v
}
