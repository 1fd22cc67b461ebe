package records

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalchain/vitalchain-api/internal/identity"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
)

func TestSplitPartitionsPublicAndPrivate(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	splitter := NewSplitter(0)

	projection, payload, err := splitter.Split(Submission{
		SubjectID: "alice@example.com",
		Content:   "cholesterol within range",
		Provider:  "Dr. Reyes",
		Facility:  "Northside Clinic",
		Type:      "lab-result",
		Date:      &date,
		Extra:     map[string]string{"panel": "lipid"},
	})
	require.NoError(t, err)

	assert.Equal(t, identity.HashIdentity("alice@example.com"), projection.SubjectKeyHash)
	assert.Equal(t, "Dr. Reyes", projection.Metadata.Provider)
	assert.Equal(t, "Northside Clinic", projection.Metadata.Facility)
	assert.Equal(t, "lab-result", projection.Metadata.RecordType)
	assert.Equal(t, SchemaVersion, projection.Metadata.SchemaVersion)
	require.NotNil(t, projection.Metadata.RecordDate)
	assert.True(t, projection.Metadata.RecordDate.Equal(date))

	assert.Equal(t, "alice@example.com", payload.SubjectID)
	assert.Equal(t, "cholesterol within range", payload.Content)
	assert.Equal(t, "lipid", payload.Extra["panel"])
}

func TestSplitRejectsMissingFields(t *testing.T) {
	splitter := NewSplitter(0)

	_, _, err := splitter.Split(Submission{Content: "something"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, _, err = splitter.Split(Submission{SubjectID: "alice"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, _, err = splitter.Split(Submission{SubjectID: "   ", Content: "x"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSplitEnforcesContentCeiling(t *testing.T) {
	splitter := NewSplitter(16)

	_, _, err := splitter.Split(Submission{
		SubjectID: "alice",
		Content:   strings.Repeat("a", 17),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPayloadTooLarge))

	_, _, err = splitter.Split(Submission{
		SubjectID: "alice",
		Content:   strings.Repeat("a", 16),
	})
	require.NoError(t, err)
}

func TestSplitSanitizesText(t *testing.T) {
	splitter := NewSplitter(0)

	projection, payload, err := splitter.Split(Submission{
		SubjectID: "alice",
		Content:   "<script>alert(1)</script>; {payload}",
		Provider:  "Dr. <Evil>",
	})
	require.NoError(t, err)

	assert.NotContains(t, payload.Content, "<")
	assert.NotContains(t, payload.Content, ">")
	assert.NotContains(t, payload.Content, ";")
	assert.NotContains(t, payload.Content, "{")
	assert.NotContains(t, payload.Content, "}")
	assert.Equal(t, "Dr. Evil", projection.Metadata.Provider)
}

func TestSplitProjectionCarriesNoRawIdentityOrContent(t *testing.T) {
	splitter := NewSplitter(0)

	projection, _, err := splitter.Split(Submission{
		SubjectID: "alice@example.com",
		Content:   "confidential notes",
	})
	require.NoError(t, err)

	assert.NotEqual(t, "alice@example.com", projection.SubjectKeyHash)
	assert.NotContains(t, projection.SubjectKeyHash, "alice")
	assert.Empty(t, projection.Metadata.Provider)
}
