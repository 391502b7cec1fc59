package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// defaultBatchSize caps the rows moved per ArchiveAttestations call.
const defaultBatchSize = 10_000

// ArchiveImpl implements domain.Archiver by draining aged attestations
// from the store into JSONL objects, one batch per call. Rows are deleted
// only after their batch has been uploaded, so an upload failure leaves
// everything in the database for the next run. A run that overlaps a
// previous partial failure may archive some rows twice; duplicates in
// cold storage are harmless, gaps are not.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	store     domain.AttestationStore
	audit     domain.AuditStore
	batchSize int
	logger    *slog.Logger
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an ArchiveImpl. A batchSize of zero or less selects
// the default.
func NewArchiver(writer domain.BlobWriter, store domain.AttestationStore, audit domain.AuditStore, batchSize int, logger *slog.Logger) *ArchiveImpl {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ArchiveImpl{
		writer:    writer,
		store:     store,
		audit:     audit,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveAttestations moves at most one batch of attestations older than
// before into cold storage and reports how many rows were removed from
// the database. Callers invoke it periodically; a backlog larger than one
// batch drains over successive calls.
func (a *ArchiveImpl) ArchiveAttestations(ctx context.Context, before time.Time) (int64, error) {
	return a.ArchiveAttestationsAt(ctx, before, time.Now().UTC())
}

// ArchiveAttestationsAt is like ArchiveAttestations but lets the caller
// supply the upload timestamp (useful for deterministic testing).
func (a *ArchiveImpl) ArchiveAttestationsAt(ctx context.Context, before, now time.Time) (int64, error) {
	batch, err := a.store.ListOlderThan(ctx, before, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive attestations query: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive attestations marshal: %w", err)
	}

	path := archivePath(before, now)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive attestations upload: %w", err)
	}

	// A full batch may cut a run of identical timestamps in half. Deleting
	// strictly before the batch maximum keeps the boundary rows for the
	// next call instead of dropping unarchived ones.
	cutoff := before
	if len(batch) == a.batchSize {
		cutoff = batch[len(batch)-1].Timestamp
	}

	deleted, err := a.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive attestations delete: %w", err)
	}
	if deleted == 0 {
		a.logger.WarnContext(ctx, "archive batch made no progress",
			slog.String("path", path),
			slog.Int("batch", len(batch)))
		return 0, nil
	}

	if err := a.audit.Log(ctx, "archive.attestations", map[string]any{
		"path":   path,
		"count":  deleted,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return deleted, fmt.Errorf("s3blob: archive attestations audit log: %w", err)
	}

	a.logger.InfoContext(ctx, "archived attestations",
		slog.String("path", path),
		slog.Int64("count", deleted))

	return deleted, nil
}

// archivePath builds the object key for one archive batch, partitioned by
// the cutoff month and stamped with the upload time.
//
//	archive/attestations/2025-06/20250601T120000Z.jsonl
func archivePath(before, now time.Time) string {
	return fmt.Sprintf("archive/attestations/%s/%s.jsonl",
		before.Format("2006-01"), now.Format("20060102T150405Z"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
