package snapshot

import (
	"encoding/json"
	"fmt"
)

// Decode unmarshals body into the record type for taskID.
func Decode(taskID string, body []byte) (Snapshot, error) {
	var dst Snapshot
	switch taskID {
	case Task1:
		dst = &Task1Data{}
	case Task2:
		dst = &Task2Data{}
	case Task3:
		dst = &Task3Data{}
	default:
		return nil, fmt.Errorf("unknown task %q", taskID)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return nil, fmt.Errorf("unmarshal %s snapshot: %w", taskID, err)
	}
	return dst, nil
}
