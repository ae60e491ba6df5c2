package testrun

import "time"

// SetStatus returns an UpdateSetter that sets the test run's status.
func SetStatus(status Status) UpdateSetter {
	return func(tr *TestRun) error {
		if !status.IsValid() {
			return ErrInvalidStatus
		}
		tr.Status = status
		return nil
	}
}

// SetPhase returns an UpdateSetter that sets the current phase.
func SetPhase(phase string) UpdateSetter {
	return func(tr *TestRun) error {
		tr.Phase = phase
		return nil
	}
}

// SetError returns an UpdateSetter that records the failure reason.
func SetError(reason string) UpdateSetter {
	return func(tr *TestRun) error {
		tr.Error = reason
		return nil
	}
}

// SetCompletedAt returns an UpdateSetter that stamps the completion time.
func SetCompletedAt(at time.Time) UpdateSetter {
	return func(tr *TestRun) error {
		tr.CompletedAt = &at
		return nil
	}
}

// AppendEvent returns an UpdateSetter that appends an event to a stored run.
func AppendEvent(kind EventKind, msg string, detail Detail) UpdateSetter {
	return func(tr *TestRun) error {
		tr.Events = append(tr.Events, Event{
			Kind:      kind,
			Timestamp: time.Now(),
			Message:   msg,
			Detail:    detail,
		})
		return nil
	}
}
