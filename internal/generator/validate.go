package generator

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/raphaelgruber/kursgen/internal/models"
	"github.com/raphaelgruber/kursgen/internal/schema"
)

const activitySchemaURL = "schema://" + schema.ActivityName + ".json"

var compileActivitySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	raw, err := schema.ActivityRaw()
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(activitySchemaURL, raw); err != nil {
		return nil, fmt.Errorf("add activity schema: %w", err)
	}
	compiled, err := c.Compile(activitySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile activity schema: %w", err)
	}
	return compiled, nil
})

// ParseActivity validates candidate JSON against the activity schema and the
// requested counts, returning the typed response.
func ParseActivity(text string, req models.ActivityRequest) (*models.LearningActivityResponse, error) {
	compiled, err := compileActivitySchema()
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiled.Validate(parsed); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var resp models.LearningActivityResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("decode activity response: %w", err)
	}
	if err := resp.CheckCounts(req); err != nil {
		return nil, err
	}
	return &resp, nil
}
