package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vitalchain/vitalchain-api/internal/envelope"
	"github.com/vitalchain/vitalchain-api/internal/identity"
	"github.com/vitalchain/vitalchain-api/internal/ipfs"
	"github.com/vitalchain/vitalchain-api/internal/ledger"
	"github.com/vitalchain/vitalchain-api/internal/models"
	"github.com/vitalchain/vitalchain-api/internal/records"
	"github.com/vitalchain/vitalchain-api/internal/repository"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
	"github.com/vitalchain/vitalchain-api/pkg/jobs"
)

// ReanchorJobType names the background job that retries ledger anchoring for
// records stuck in the stored state.
const ReanchorJobType = "record.reanchor"

const publicCachePrefix = "records:public:"

// errAnchorPending marks an anchored message that is not yet readable from
// the mirror node. Distinct from a mismatch, which never resolves.
var errAnchorPending = errors.New("anchored message not yet readable")

type recordRepository interface {
	Create(ctx context.Context, record *models.Record) error
	FindByDocumentID(ctx context.Context, documentID string) (*models.Record, error)
	ListBySubject(ctx context.Context, subjectKeyHash string, page, pageSize int) ([]models.Record, int, error)
	UpdateStatus(ctx context.Context, documentID string, status models.RecordStatus) error
	UpdateAnchor(ctx context.Context, documentID, topicID string, sequence int64) error
	AppendSubjectIndex(ctx context.Context, subjectKeyHash, documentID string) error
}

// subjectRegistry gates submissions on a registered subject. The users table
// is the registry; references resolve by row id or email.
type subjectRegistry interface {
	ResolveSubject(ctx context.Context, ref string) (*models.User, error)
}

type recordCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// anchorMessage is the payload submitted to the ledger topic. The message
// binds a document identifier to the blob content identifier; re-reading it
// later proves the blob reference was not rewritten after the fact.
type anchorMessage struct {
	DocumentID   string    `json:"document_id"`
	ContentID    string    `json:"content_id"`
	KeyReference string    `json:"key_reference"`
	Timestamp    time.Time `json:"timestamp"`
}

// SubmitResult reports the outcome of a record submission.
type SubmitResult struct {
	Projection models.PublicProjection `json:"record"`
	Anchored   bool                    `json:"anchored"`
}

// RecordServiceConfig tunes the anchoring pipeline.
type RecordServiceConfig struct {
	AnchorTopicID  string
	PublicCacheTTL time.Duration
}

// RecordService implements the record anchoring pipeline: split, encrypt,
// pin, anchor, persist. The blob store is the durability boundary (an upload
// failure fails the submission), while a ledger failure degrades the record
// to stored and defers anchoring to the background queue.
type RecordService struct {
	repo      recordRepository
	subjects  subjectRegistry
	cache     recordCache
	blobs     ipfs.BlobStore
	anchors   ledger.AnchorAdapter
	codec     *envelope.Codec
	splitter  *records.Splitter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    RecordServiceConfig

	reanchorQueue *jobs.Queue
}

// NewRecordService constructs the pipeline service.
func NewRecordService(
	repo recordRepository,
	subjects subjectRegistry,
	cache recordCache,
	blobs ipfs.BlobStore,
	anchors ledger.AnchorAdapter,
	codec *envelope.Codec,
	splitter *records.Splitter,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	config RecordServiceConfig,
) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if splitter == nil {
		splitter = records.NewSplitter(0)
	}
	if config.PublicCacheTTL <= 0 {
		config.PublicCacheTTL = 5 * time.Minute
	}
	return &RecordService{
		repo:      repo,
		subjects:  subjects,
		cache:     cache,
		blobs:     blobs,
		anchors:   anchors,
		codec:     codec,
		splitter:  splitter,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// SetReanchorQueue wires the background queue that retries deferred anchors.
// Called once at startup after the queue is built around this service.
func (s *RecordService) SetReanchorQueue(q *jobs.Queue) {
	s.reanchorQueue = q
}

// Submit runs the full pipeline for one submission. The subject must already
// exist in the registry. Submissions are not deduplicated: submitting the
// same content twice yields two documents, each with its own identifier and
// envelope.
func (s *RecordService) Submit(ctx context.Context, sub records.Submission) (*SubmitResult, error) {
	start := time.Now()

	projection, payload, err := s.splitter.Split(sub)
	if err != nil {
		return nil, err
	}

	if _, err := s.subjects.ResolveSubject(ctx, sub.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSubjectNotFound, "subject is not registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
	}

	documentID := identity.NewDocumentID()
	projection.DocumentID = documentID
	projection.Status = models.RecordStatusPending

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode private payload")
	}

	env, err := s.codec.Encrypt(payloadJSON)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seal private payload")
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode envelope")
	}

	// Durability boundary: nothing is persisted unless the envelope is
	// pinned, so a failure here leaves no partial state behind.
	contentID, err := s.blobs.Upload(ctx, envJSON)
	if err != nil {
		s.metrics.ObserveAnchorAttempt("failed", time.Since(start))
		return nil, appErrors.AdapterFailure("blob upload", err)
	}

	record := &models.Record{
		DocumentID:     documentID,
		SubjectKeyHash: projection.SubjectKeyHash,
		Provider:       projection.Metadata.Provider,
		Facility:       projection.Metadata.Facility,
		RecordType:     projection.Metadata.RecordType,
		RecordDate:     projection.Metadata.RecordDate,
		SchemaVersion:  projection.Metadata.SchemaVersion,
		StorageReference: models.StorageReference{
			Kind:         models.StorageKindBlob,
			ContentID:    &contentID,
			KeyReference: env.KeyReference,
		},
		Status: models.RecordStatusStored,
	}

	anchored := false
	receipt, anchorErr := s.anchor(ctx, documentID, contentID, env.KeyReference)
	if anchorErr != nil {
		// The envelope is durable; only the tamper-evidence step is
		// deferred. The background queue retries until it lands.
		s.logger.Warn("ledger anchor deferred",
			zap.String("document_id", documentID),
			zap.Error(anchorErr))
	} else {
		anchored = true
		record.Kind = models.StorageKindAnchor
		record.TopicID = &s.config.AnchorTopicID
		seq := receipt.SequenceNumber
		record.SequenceNumber = &seq
		record.Status = models.RecordStatusAnchored
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.metrics.ObserveAnchorAttempt("failed", time.Since(start))
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateDocument, "document id already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist record")
	}

	if err := s.repo.AppendSubjectIndex(ctx, record.SubjectKeyHash, documentID); err != nil {
		s.logger.Warn("failed to append subject index", zap.String("document_id", documentID), zap.Error(err))
	}

	if !anchored {
		s.enqueueReanchor(documentID)
		s.metrics.ObserveAnchorAttempt("deferred", time.Since(start))
	} else {
		s.metrics.ObserveAnchorAttempt("anchored", time.Since(start))
	}

	projection.Status = record.Status
	projection.CreatedAt = record.CreatedAt
	return &SubmitResult{Projection: projection, Anchored: anchored}, nil
}

// GetPublic returns the non-sensitive projection of a record. Served from
// cache when possible; reads never consult the blob store or the ledger.
func (s *RecordService) GetPublic(ctx context.Context, documentID string) (*models.PublicProjection, bool, error) {
	key := publicCachePrefix + documentID

	var cached models.PublicProjection
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, true, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("public projection cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	record, err := s.loadRecord(ctx, documentID)
	if err != nil {
		return nil, false, err
	}

	projection := projectionOf(record)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, projection, s.config.PublicCacheTTL); err != nil {
			s.logger.Warn("public projection cache write failed", zap.Error(err))
		}
	}
	return &projection, false, nil
}

// ListBySubject returns a subject's projections, newest first. The subject
// reference is hashed before it touches any query.
func (s *RecordService) ListBySubject(ctx context.Context, subjectRef string, page, pageSize int) ([]models.PublicProjection, *models.Pagination, error) {
	hash := identity.HashIdentity(subjectRef)

	recs, total, err := s.repo.ListBySubject(ctx, hash, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}

	out := make([]models.PublicProjection, 0, len(recs))
	for i := range recs {
		out = append(out, projectionOf(&recs[i]))
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return out, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// GetPrivate resolves, fetches and opens the private payload of a record.
// Resolution dispatches on the storage reference kind; every failure mode is
// distinguishable to the caller: a missing record, an unresolvable anchor,
// and a failed integrity check each carry their own error.
func (s *RecordService) GetPrivate(ctx context.Context, documentID string) (*models.PrivatePayload, error) {
	record, err := s.loadRecord(ctx, documentID)
	if err != nil {
		return nil, err
	}

	env, err := s.resolveEnvelope(ctx, record)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.codec.Decrypt(*env)
	if err != nil {
		return nil, err
	}

	var payload models.PrivatePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "decrypted payload is not a valid record")
	}
	return &payload, nil
}

// Archive transitions a record to the archived state and drops its cached
// projection. The record itself is never deleted.
func (s *RecordService) Archive(ctx context.Context, documentID string) error {
	if err := s.repo.UpdateStatus(ctx, documentID, models.RecordStatusArchived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrRecordNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive record")
	}
	s.invalidateProjection(ctx, documentID)
	return nil
}

// Reanchor retries the ledger anchor for a stored record. Invoked by the
// background queue; a record that was anchored in the meantime is a no-op.
func (s *RecordService) Reanchor(ctx context.Context, documentID string) error {
	record, err := s.loadRecord(ctx, documentID)
	if err != nil {
		return err
	}
	if record.Status != models.RecordStatusStored {
		return nil
	}
	if record.ContentID == nil || *record.ContentID == "" {
		return appErrors.Clone(appErrors.ErrAnchorUnresolved, "stored record has no content identifier")
	}

	receipt, err := s.anchor(ctx, documentID, *record.ContentID, record.KeyReference)
	if err != nil {
		return appErrors.AdapterFailure("ledger anchor", err)
	}

	if err := s.repo.UpdateAnchor(ctx, documentID, s.config.AnchorTopicID, receipt.SequenceNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race against another worker; the anchor landed either
			// way.
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp anchor")
	}

	s.invalidateProjection(ctx, documentID)
	s.logger.Info("record anchored",
		zap.String("document_id", documentID),
		zap.Int64("sequence", receipt.SequenceNumber))
	return nil
}

// HandleReanchorJob adapts Reanchor to the queue handler signature.
func (s *RecordService) HandleReanchorJob(ctx context.Context, job jobs.Job) error {
	documentID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("reanchor job %s carries unexpected payload %T", job.ID, job.Payload)
	}
	return s.Reanchor(ctx, documentID)
}

func (s *RecordService) anchor(ctx context.Context, documentID, contentID, keyRef string) (ledger.AnchorReceipt, error) {
	if s.anchors == nil || s.config.AnchorTopicID == "" {
		return ledger.AnchorReceipt{}, fmt.Errorf("ledger anchoring not configured")
	}

	msg, err := json.Marshal(anchorMessage{
		DocumentID:   documentID,
		ContentID:    contentID,
		KeyReference: keyRef,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return ledger.AnchorReceipt{}, fmt.Errorf("encode anchor message: %w", err)
	}
	return s.anchors.SubmitMessage(ctx, s.config.AnchorTopicID, msg)
}

func (s *RecordService) enqueueReanchor(documentID string) {
	if s.reanchorQueue == nil {
		return
	}
	if err := s.reanchorQueue.Enqueue(jobs.Job{
		ID:      documentID,
		Type:    ReanchorJobType,
		Payload: documentID,
	}); err != nil {
		s.logger.Warn("failed to enqueue re-anchor job", zap.String("document_id", documentID), zap.Error(err))
	}
}

func (s *RecordService) loadRecord(ctx context.Context, documentID string) (*models.Record, error) {
	record, err := s.repo.FindByDocumentID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRecordNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	return record, nil
}

// resolveEnvelope turns a storage reference into the sealed envelope,
// dispatching on the reference kind.
func (s *RecordService) resolveEnvelope(ctx context.Context, record *models.Record) (*envelope.Envelope, error) {
	switch record.Kind {
	case models.StorageKindInline:
		if record.EnvelopeJSON == nil || *record.EnvelopeJSON == "" {
			return nil, appErrors.Clone(appErrors.ErrAnchorUnresolved, "inline record has no envelope")
		}
		var env envelope.Envelope
		if err := json.Unmarshal([]byte(*record.EnvelopeJSON), &env); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "inline envelope is malformed")
		}
		return &env, nil

	case models.StorageKindBlob:
		if record.ContentID == nil || *record.ContentID == "" {
			return nil, appErrors.Clone(appErrors.ErrAnchorUnresolved, "blob record has no content identifier")
		}
		return s.fetchEnvelope(ctx, *record.ContentID)

	case models.StorageKindAnchor:
		contentID, err := s.resolveAnchoredContentID(ctx, record)
		if errors.Is(err, errAnchorPending) {
			// Mirror nodes lag consensus; the persisted content id bridges
			// the window until the anchored message becomes readable.
			if record.ContentID != nil && *record.ContentID != "" {
				s.logger.Warn("anchored message not yet readable, serving stored content id",
					zap.String("document_id", record.DocumentID),
					zap.Error(err))
				return s.fetchEnvelope(ctx, *record.ContentID)
			}
			return nil, appErrors.Clone(appErrors.ErrAnchorUnresolved, "anchored message is not readable yet")
		}
		if err != nil {
			return nil, err
		}
		return s.fetchEnvelope(ctx, contentID)

	default:
		return nil, appErrors.Clone(appErrors.ErrAnchorUnresolved, "unknown storage reference kind")
	}
}

// resolveAnchoredContentID reads the anchored message back from the ledger
// and extracts the content identifier it committed to.
func (s *RecordService) resolveAnchoredContentID(ctx context.Context, record *models.Record) (string, error) {
	if record.TopicID == nil || record.SequenceNumber == nil {
		return "", appErrors.Clone(appErrors.ErrAnchorUnresolved, "anchored record is missing topic coordinates")
	}

	messages, err := s.anchors.QueryMessages(ctx, *record.TopicID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errAnchorPending, err)
	}

	for _, msg := range messages {
		if msg.SequenceNumber != *record.SequenceNumber {
			continue
		}
		var anchored anchorMessage
		if err := json.Unmarshal(msg.Contents, &anchored); err != nil {
			return "", appErrors.Clone(appErrors.ErrAnchorUnresolved, "anchored message is malformed")
		}
		if anchored.DocumentID != record.DocumentID || anchored.ContentID == "" {
			return "", appErrors.Clone(appErrors.ErrAnchorUnresolved, "anchored message does not match record")
		}
		return anchored.ContentID, nil
	}
	return "", fmt.Errorf("%w: sequence %d not on topic", errAnchorPending, *record.SequenceNumber)
}

func (s *RecordService) fetchEnvelope(ctx context.Context, contentID string) (*envelope.Envelope, error) {
	raw, err := s.blobs.Fetch(ctx, contentID)
	if err != nil {
		return nil, appErrors.AdapterFailure("blob fetch", err)
	}
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "fetched envelope is malformed")
	}
	return &env, nil
}

func (s *RecordService) invalidateProjection(ctx context.Context, documentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, publicCachePrefix+documentID); err != nil {
		s.logger.Warn("failed to invalidate cached projection", zap.String("document_id", documentID), zap.Error(err))
	}
}

func projectionOf(record *models.Record) models.PublicProjection {
	return models.PublicProjection{
		DocumentID:     record.DocumentID,
		SubjectKeyHash: record.SubjectKeyHash,
		Metadata: models.PublicMetadata{
			Provider:      record.Provider,
			Facility:      record.Facility,
			RecordType:    record.RecordType,
			RecordDate:    record.RecordDate,
			SchemaVersion: record.SchemaVersion,
		},
		Status:    record.Status,
		CreatedAt: record.CreatedAt,
	}
}
