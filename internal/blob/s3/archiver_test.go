package s3blob_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	s3blob "github.com/emilyjiji/simple-price-oracle-avs-example/internal/blob/s3"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type upload struct {
	path        string
	content     []byte
	contentType string
	multipart   bool
}

type memWriter struct {
	uploads []upload
	err     error
}

var _ domain.BlobWriter = (*memWriter)(nil)

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	content, _ := io.ReadAll(data)
	w.uploads = append(w.uploads, upload{path: path, content: content, contentType: contentType})
	return nil
}

func (w *memWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	if w.err != nil {
		return w.err
	}
	content, _ := io.ReadAll(data)
	w.uploads = append(w.uploads, upload{path: path, content: content, multipart: true})
	return nil
}

type archiveStore struct {
	domain.AttestationStore

	rows       []domain.Attestation
	listErr    error
	deleteErr  error
	lastCutoff time.Time
}

func (s *archiveStore) ListOlderThan(_ context.Context, before time.Time, limit int) ([]domain.Attestation, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Attestation
	for _, a := range s.rows {
		if a.Timestamp.Before(before) {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *archiveStore) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.lastCutoff = before
	var kept []domain.Attestation
	var deleted int64
	for _, a := range s.rows {
		if a.Timestamp.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return deleted, nil
}

type memAudit struct {
	events []string
	detail map[string]any
	err    error
}

var _ domain.AuditStore = (*memAudit)(nil)

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, event)
	a.detail = detail
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func attestationAt(ts time.Time) domain.Attestation {
	return domain.Attestation{
		ID:                uuid.New(),
		PositionID:        common.HexToHash("0x01"),
		Owner:             common.HexToAddress("0xabc0000000000000000000000000000000000001"),
		Action:            domain.ActionRestake,
		Timestamp:         ts,
		PriceAtValidation: 2500,
	}
}

func TestArchiveAttestations(t *testing.T) {
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	old1 := attestationAt(cutoff.Add(-48 * time.Hour))
	old2 := attestationAt(cutoff.Add(-24 * time.Hour))
	fresh := attestationAt(cutoff.Add(24 * time.Hour))

	writer := &memWriter{}
	store := &archiveStore{rows: []domain.Attestation{old1, old2, fresh}}
	audit := &memAudit{}

	arch := s3blob.NewArchiver(writer, store, audit, 0, testLogger())

	count, err := arch.ArchiveAttestationsAt(context.Background(), cutoff, now)
	if err != nil {
		t.Fatalf("ArchiveAttestationsAt: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	if len(writer.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(writer.uploads))
	}
	up := writer.uploads[0]
	if up.path != "archive/attestations/2025-06/20250615T120000Z.jsonl" {
		t.Errorf("path = %q", up.path)
	}
	if up.contentType != "application/x-ndjson" {
		t.Errorf("content type = %q", up.contentType)
	}
	if up.multipart {
		t.Error("small batch used multipart upload")
	}

	var gotIDs []uuid.UUID
	sc := bufio.NewScanner(bytes.NewReader(up.content))
	for sc.Scan() {
		var a domain.Attestation
		if err := json.Unmarshal(sc.Bytes(), &a); err != nil {
			t.Fatalf("decode archived line: %v", err)
		}
		gotIDs = append(gotIDs, a.ID)
	}
	if len(gotIDs) != 2 || gotIDs[0] != old1.ID || gotIDs[1] != old2.ID {
		t.Errorf("archived ids = %v, want [%s %s]", gotIDs, old1.ID, old2.ID)
	}

	if len(store.rows) != 1 || store.rows[0].ID != fresh.ID {
		t.Errorf("remaining rows = %d, fresh attestation should survive", len(store.rows))
	}

	if len(audit.events) != 1 || audit.events[0] != "archive.attestations" {
		t.Errorf("audit events = %v", audit.events)
	}
	if audit.detail["count"] != int64(2) {
		t.Errorf("audit count = %v, want 2", audit.detail["count"])
	}
}

func TestArchiveAttestationsEmpty(t *testing.T) {
	writer := &memWriter{}
	store := &archiveStore{}
	audit := &memAudit{}

	arch := s3blob.NewArchiver(writer, store, audit, 0, testLogger())

	count, err := arch.ArchiveAttestations(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveAttestations: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(writer.uploads) != 0 {
		t.Error("empty archive produced an upload")
	}
	if len(audit.events) != 0 {
		t.Error("empty archive produced an audit event")
	}
}

func TestArchiveAttestationsFullBatchKeepsBoundary(t *testing.T) {
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	first := attestationAt(cutoff.Add(-3 * time.Hour))
	second := attestationAt(cutoff.Add(-2 * time.Hour))
	third := attestationAt(cutoff.Add(-1 * time.Hour))

	writer := &memWriter{}
	store := &archiveStore{rows: []domain.Attestation{first, second, third}}
	audit := &memAudit{}

	arch := s3blob.NewArchiver(writer, store, audit, 2, testLogger())

	count, err := arch.ArchiveAttestations(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveAttestations: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (strictly before batch max)", count)
	}
	if !store.lastCutoff.Equal(second.Timestamp) {
		t.Errorf("delete cutoff = %v, want batch max %v", store.lastCutoff, second.Timestamp)
	}
	if len(store.rows) != 2 {
		t.Errorf("remaining rows = %d, want 2", len(store.rows))
	}
}

func TestArchiveAttestationsMultipart(t *testing.T) {
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	big := attestationAt(cutoff.Add(-time.Hour))
	big.ExternalValidation = json.RawMessage(`"` + strings.Repeat("x", 9*1024*1024) + `"`)

	writer := &memWriter{}
	store := &archiveStore{rows: []domain.Attestation{big}}
	audit := &memAudit{}

	arch := s3blob.NewArchiver(writer, store, audit, 0, testLogger())

	if _, err := arch.ArchiveAttestations(context.Background(), cutoff); err != nil {
		t.Fatalf("ArchiveAttestations: %v", err)
	}
	if len(writer.uploads) != 1 || !writer.uploads[0].multipart {
		t.Error("oversized batch should use multipart upload")
	}
}

func TestArchiveAttestationsErrors(t *testing.T) {
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	row := attestationAt(cutoff.Add(-time.Hour))

	t.Run("list failure", func(t *testing.T) {
		store := &archiveStore{listErr: errors.New("db down")}
		arch := s3blob.NewArchiver(&memWriter{}, store, &memAudit{}, 0, testLogger())
		if _, err := arch.ArchiveAttestations(context.Background(), cutoff); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("upload failure leaves rows", func(t *testing.T) {
		store := &archiveStore{rows: []domain.Attestation{row}}
		writer := &memWriter{err: errors.New("bucket gone")}
		arch := s3blob.NewArchiver(writer, store, &memAudit{}, 0, testLogger())
		if _, err := arch.ArchiveAttestations(context.Background(), cutoff); err == nil {
			t.Fatal("expected error")
		}
		if len(store.rows) != 1 {
			t.Error("rows were deleted despite upload failure")
		}
	})

	t.Run("delete failure", func(t *testing.T) {
		store := &archiveStore{rows: []domain.Attestation{row}, deleteErr: errors.New("db down")}
		arch := s3blob.NewArchiver(&memWriter{}, store, &memAudit{}, 0, testLogger())
		if _, err := arch.ArchiveAttestations(context.Background(), cutoff); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("audit failure still reports count", func(t *testing.T) {
		store := &archiveStore{rows: []domain.Attestation{row}}
		audit := &memAudit{err: errors.New("db down")}
		arch := s3blob.NewArchiver(&memWriter{}, store, audit, 0, testLogger())
		count, err := arch.ArchiveAttestations(context.Background(), cutoff)
		if err == nil {
			t.Fatal("expected error")
		}
		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}
	})
}
