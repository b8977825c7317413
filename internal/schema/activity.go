package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

// ActivityName identifies the learning activity schema in caches and logs.
const ActivityName = "learning_activity_response"

//go:embed learning_activity.schema.json
var activitySchemaJSON []byte

var loadActivityRaw = sync.OnceValues(func() (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(activitySchemaJSON, &raw); err != nil {
		return nil, fmt.Errorf("parse activity schema: %w", err)
	}
	return raw, nil
})

// ActivityRaw returns the reference-based schema of LearningActivityResponse.
// The returned map is shared and must not be modified.
func ActivityRaw() (map[string]any, error) {
	return loadActivityRaw()
}

// Activity returns a freshly normalized LearningActivityResponse schema.
func Activity() (map[string]any, error) {
	raw, err := loadActivityRaw()
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}
