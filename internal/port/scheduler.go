package port

// PollScheduler is told about newly submitted jobs so polling starts from
// the base interval.
type PollScheduler interface {
	Schedule(jobID string)
}
