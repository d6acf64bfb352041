package domain

import "time"

// ValidationStatus is the outcome of a tabular contract check
type ValidationStatus string

const (
	ValidationPass ValidationStatus = "pass"
	ValidationWarn ValidationStatus = "warn"
	ValidationFail ValidationStatus = "fail"
)

// IngestTrigger records what caused an ingest event
type IngestTrigger string

const (
	TriggerIngest      IngestTrigger = "ingest"
	TriggerReplay      IngestTrigger = "replay"
	TriggerReplayForce IngestTrigger = "replay_force"
	TriggerRebuild     IngestTrigger = "rebuild"
)

// IsValid returns true if the trigger is valid
func (t IngestTrigger) IsValid() bool {
	switch t {
	case TriggerIngest, TriggerReplay, TriggerReplayForce, TriggerRebuild:
		return true
	}
	return false
}

// IngestEvent is an append-only lineage record, one per ingestion attempt that reached storage.
type IngestEvent struct {
	ID                string
	DocID             string
	DocVersion        int64
	IngestedAt        time.Time
	ContentSHA256     string
	PrevContentSHA256 string
	Changed           bool
	NumChunks         int

	EmbeddingBackend  string
	EmbeddingModel    string
	EmbeddingDim      int
	EmbeddingFallback bool
	ChunkSize         int
	ChunkOverlap      int

	SchemaFingerprint string
	ContractSHA256    string
	ValidationStatus  ValidationStatus
	ValidationErrors  []string
	SchemaDrifted     bool

	Trigger     IngestTrigger
	ReplayRunID string
}
