package records

import (
	"strings"
	"time"

	"github.com/vitalchain/vitalchain-api/internal/identity"
	"github.com/vitalchain/vitalchain-api/internal/models"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
)

// SchemaVersion stamps every projection so future layout changes stay
// distinguishable in the document store.
const SchemaVersion = "1.0"

// DefaultMaxContentBytes caps submitted content ahead of any encryption or
// store call.
const DefaultMaxContentBytes = 1 << 20

// Submission is an inbound record before splitting.
type Submission struct {
	SubjectID string            `json:"subject_id"`
	Content   string            `json:"content"`
	Provider  string            `json:"provider,omitempty"`
	Facility  string            `json:"facility,omitempty"`
	Type      string            `json:"type,omitempty"`
	Date      *time.Time        `json:"date,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Splitter partitions a submission into a public projection and a private
// payload. The projection carries only operator/facility/date/type/version;
// raw subject identity and free-text content go exclusively into the private
// payload.
type Splitter struct {
	maxContentBytes int64
}

// NewSplitter builds a splitter with the given content ceiling; zero or
// negative falls back to DefaultMaxContentBytes.
func NewSplitter(maxContentBytes int64) *Splitter {
	if maxContentBytes <= 0 {
		maxContentBytes = DefaultMaxContentBytes
	}
	return &Splitter{maxContentBytes: maxContentBytes}
}

// Split validates, sanitises and partitions a submission. It fails closed:
// a missing required field or oversized content rejects the whole
// submission before any downstream side effect.
func (s *Splitter) Split(sub Submission) (models.PublicProjection, models.PrivatePayload, error) {
	if strings.TrimSpace(sub.SubjectID) == "" {
		return models.PublicProjection{}, models.PrivatePayload{}, validationError("subject_id")
	}
	if strings.TrimSpace(sub.Content) == "" {
		return models.PublicProjection{}, models.PrivatePayload{}, validationError("content")
	}
	if int64(len(sub.Content)) > s.maxContentBytes {
		return models.PublicProjection{}, models.PrivatePayload{},
			appErrors.Clone(appErrors.ErrPayloadTooLarge, "record content exceeds size limit")
	}

	subjectID := sanitizeText(sub.SubjectID)
	content := sanitizeText(sub.Content)

	projection := models.PublicProjection{
		SubjectKeyHash: identity.HashIdentity(subjectID),
		Metadata: models.PublicMetadata{
			Provider:      sanitizeText(sub.Provider),
			Facility:      sanitizeText(sub.Facility),
			RecordType:    sanitizeText(sub.Type),
			RecordDate:    sub.Date,
			SchemaVersion: SchemaVersion,
		},
	}

	payload := models.PrivatePayload{
		SubjectID: subjectID,
		Content:   content,
		Extra:     sub.Extra,
	}

	return projection, payload, nil
}

func validationError(field string) error {
	return appErrors.Clone(appErrors.ErrValidation, "missing required field: "+field)
}

// sanitizeText strips characters commonly abused for HTML or code injection
// before content reaches any store.
func sanitizeText(text string) string {
	replacer := strings.NewReplacer("<", "", ">", "", ";", "", "{", "", "}", "")
	return replacer.Replace(strings.TrimSpace(text))
}
