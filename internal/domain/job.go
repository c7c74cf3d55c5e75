package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JobVersion is the current job entry schema version.
const JobVersion = 1

var ErrMalformedJob = errors.New("malformed job entry")

// Job is the payload of one job entry on the broker: "probe this target now".
type Job struct {
	V        int      `json:"v"`
	TargetID TargetID `json:"target_id"`
	URL      string   `json:"url"`
}

func NewJob(t Target) Job {
	return Job{V: JobVersion, TargetID: t.ID, URL: t.URL}
}

func (j Job) Validate() error {
	if j.V != JobVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedJob, j.V)
	}
	if strings.TrimSpace(string(j.TargetID)) == "" {
		return fmt.Errorf("%w: empty target id", ErrMalformedJob)
	}
	if strings.TrimSpace(j.URL) == "" {
		return fmt.Errorf("%w: empty url", ErrMalformedJob)
	}
	return nil
}

func EncodeJob(j Job) ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

func DecodeJob(payload []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(payload, &j); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}
