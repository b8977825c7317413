package models

import (
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString extracts the string key from a SurrealDB record ID.
// Job and chunk records are always keyed by strings.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected record key type %T in %s", id.ID, id.Table)
	}
	return s, nil
}
