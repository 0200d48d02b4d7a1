package enum

// IngestionStatus is the terminal-or-in-flight state of one message for one inbox.
type IngestionStatus string

const (
	IngestionProcessing IngestionStatus = "PROCESSING"
	IngestionProcessed  IngestionStatus = "PROCESSED"
	IngestionSkipped    IngestionStatus = "SKIPPED"
	IngestionFailed     IngestionStatus = "FAILED"
)

// IngestionStage is where in the pipeline a message currently sits. A FAILED
// record resumes from its recorded stage, never from the beginning.
type IngestionStage string

const (
	StageFetched      IngestionStage = "FETCHED"
	StageNormalized   IngestionStage = "NORMALIZED"
	StageMatched      IngestionStage = "MATCHED"
	StageExecuted     IngestionStage = "EXECUTED"
	StageAcknowledged IngestionStage = "ACKNOWLEDGED"
)
