package db

import "fmt"

const (
	jobTable   = "activity_job"
	chunkTable = "chunk"
)

// SchemaSQL returns the schema definition with the chunk embedding index
// sized to dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}

const schemaTemplate = `
    -- ==========================================================================
    -- ACTIVITY JOBS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS activity_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS status ON activity_job TYPE string
        ASSERT $value IN ["PENDING", "COMPLETED", "FAILED"];
    DEFINE FIELD IF NOT EXISTS request_data ON activity_job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS result_data ON activity_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error_message ON activity_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON activity_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON activity_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS activity_job_status ON activity_job FIELDS status, created_at;

    -- ==========================================================================
    -- CURRICULUM CHUNKS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS subject ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS heading ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS grade_level ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS content_type ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS position ON chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS embedding ON chunk TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created ON chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chunk_subject_grade ON chunk FIELDS subject, grade_level;
    DEFINE INDEX IF NOT EXISTS chunk_embedding ON chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`
