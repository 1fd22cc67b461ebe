package models

import "time"

// RecordStatus tags the lifecycle of a health record.
type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "pending"
	RecordStatusEncrypted RecordStatus = "encrypted"
	RecordStatusStored    RecordStatus = "stored"
	RecordStatusAnchored  RecordStatus = "anchored"
	RecordStatusArchived  RecordStatus = "archived"
	RecordStatusError     RecordStatus = "error"
)

// StorageKind discriminates the storage reference variant.
type StorageKind string

const (
	// StorageKindInline keeps the encrypted envelope in the document store.
	StorageKindInline StorageKind = "inline"
	// StorageKindBlob references a content identifier in the blob store.
	StorageKindBlob StorageKind = "blob"
	// StorageKindAnchor references ledger topic coordinates whose message
	// carries the blob content identifier.
	StorageKindAnchor StorageKind = "anchor"
)

// StorageReference is a tagged variant; exactly one resolution strategy is
// populated per record, dispatched on Kind.
type StorageReference struct {
	Kind StorageKind `db:"storage_kind" json:"kind"`

	// inline
	EnvelopeJSON *string `db:"storage_envelope" json:"-"`

	// blob
	ContentID *string `db:"storage_content_id" json:"content_id,omitempty"`

	// anchor
	TopicID        *string `db:"storage_topic_id" json:"topic_id,omitempty"`
	SequenceNumber *int64  `db:"storage_sequence" json:"sequence_number,omitempty"`

	KeyReference string `db:"key_reference" json:"-"`
}

// Record is the unit of stored information. Only the anchoring pipeline and
// explicit archival mutate it; readers never do.
type Record struct {
	ID             string       `db:"id" json:"id"`
	DocumentID     string       `db:"document_id" json:"document_id"`
	SubjectKeyHash string       `db:"subject_key_hash" json:"subject_key_hash"`
	Provider       string       `db:"provider" json:"provider,omitempty"`
	Facility       string       `db:"facility" json:"facility,omitempty"`
	RecordType     string       `db:"record_type" json:"record_type,omitempty"`
	RecordDate     *time.Time   `db:"record_date" json:"record_date,omitempty"`
	SchemaVersion  string       `db:"schema_version" json:"schema_version"`
	StorageReference
	Status         RecordStatus `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// PublicProjection is the non-sensitive subset of a record safe to index and
// return without authorization. It never carries raw subject identity or
// free-text content.
type PublicProjection struct {
	DocumentID     string         `json:"document_id"`
	SubjectKeyHash string         `json:"subject_key_hash"`
	Metadata       PublicMetadata `json:"metadata"`
	Status         RecordStatus   `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PublicMetadata is the small queryable mapping on a projection.
type PublicMetadata struct {
	Provider      string     `json:"provider,omitempty"`
	Facility      string     `json:"facility,omitempty"`
	RecordType    string     `json:"record_type,omitempty"`
	RecordDate    *time.Time `json:"record_date,omitempty"`
	SchemaVersion string     `json:"schema_version"`
}

// PrivatePayload is the full content plus raw subject identity; it only ever
// exists in plaintext inside the pipeline and on authorized reads.
type PrivatePayload struct {
	SubjectID string            `json:"subject_id"`
	Content   string            `json:"content"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// SubjectRecordIndexEntry is a row in the append-only per-subject index.
type SubjectRecordIndexEntry struct {
	SubjectKeyHash string    `db:"subject_key_hash" json:"subject_key_hash"`
	DocumentID     string    `db:"document_id" json:"document_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
