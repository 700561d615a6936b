package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskExpireMatches sweeps PENDENTE/VISUALIZADO matches past their deadline.
const TaskExpireMatches = "matches.expire"

// TaskRedistributeOrphans retries distribution for open cases with no matches.
const TaskRedistributeOrphans = "casos.redistribute"

// TaskNotifyMatch emails an advogado about one freshly created match.
const TaskNotifyMatch = "matches.notify"

type NotifyMatchPayload struct {
	MatchID string `json:"matchId"`
}

func NewNotifyMatchTask(payload NotifyMatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyMatch, data), nil
}

func ParseNotifyMatchPayload(task *asynq.Task) (NotifyMatchPayload, error) {
	var payload NotifyMatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotifyMatchPayload{}, err
	}
	return payload, nil
}

// NewExpireMatchesTask and NewRedistributeOrphansTask carry no payload; the
// handlers read their parameters from settings at run time.
func NewExpireMatchesTask() *asynq.Task {
	return asynq.NewTask(TaskExpireMatches, nil)
}

func NewRedistributeOrphansTask() *asynq.Task {
	return asynq.NewTask(TaskRedistributeOrphans, nil)
}
