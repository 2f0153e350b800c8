// Package ingest turns uploaded documents into owner-tagged page embeddings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/studybuddy/backend/internal/store"
	"github.com/studybuddy/backend/internal/telemetry"
	"github.com/studybuddy/backend/internal/vectorstore"
)

// ErrIngestionFailed marks a failed upload batch. Vectors upserted before the
// failure are not rolled back: records are idempotently keyed by
// owner+document+page, so a retry re-upserts identical ids.
var ErrIngestionFailed = errors.New("ingestion failed")

// Page is one page of extracted text.
type Page struct {
	Number  int
	Content string
}

// PageExtractor is the external text-extraction collaborator.
type PageExtractor interface {
	ExtractPages(ctx context.Context, filename string, data []byte) ([]Page, error)
}

// Upload is one file handed to the pipeline.
type Upload struct {
	Filename string
	Data     []byte
}

// Result describes one ingested document.
type Result struct {
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename"`
	PageCount  int    `json:"pageCount"`
}

type documentRecorder interface {
	UpsertDocument(ctx context.Context, doc store.Document) error
	UpdateDocumentStatus(ctx context.Context, userID, documentID, status string, pageCount int) error
}

type embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline parses uploads into per-page records, embeds them and stores them
// with owner/document tags.
type Pipeline struct {
	extractor PageExtractor
	provider  embedder
	vectors   vectorstore.Store
	documents documentRecorder
	logger    *log.Logger
}

func NewPipeline(extractor PageExtractor, p embedder, vectors vectorstore.Store, documents documentRecorder, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Pipeline{extractor: extractor, provider: p, vectors: vectors, documents: documents, logger: logger}
}

// Ingest processes an upload batch for one owner. Any extraction or embedding
// failure fails the whole batch.
func (p *Pipeline) Ingest(ctx context.Context, ownerID string, files []Upload) ([]Result, error) {
	var results []Result
	for _, file := range files {
		res, err := p.ingestFile(ctx, ownerID, file)
		if err != nil {
			p.logger.Printf("ingest %q for user %s: %v", file.Filename, ownerID, err)
			return nil, fmt.Errorf("%w: %s: %v", ErrIngestionFailed, file.Filename, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// documentIdentity derives a stable id from owner and filename. Re-uploading
// the same file lands its vectors on the same owner+document+page keys, so a
// retry after a partial failure overwrites instead of accumulating duplicates.
func documentIdentity(ownerID, filename string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(ownerID+"/"+filename)).String()
}

func (p *Pipeline) ingestFile(ctx context.Context, ownerID string, file Upload) (Result, error) {
	documentID := documentIdentity(ownerID, file.Filename)
	doc := store.Document{
		ID:       documentID,
		UserID:   ownerID,
		Filename: file.Filename,
		Status:   store.DocumentStatusProcessing,
	}
	if err := p.documents.UpsertDocument(ctx, doc); err != nil {
		return Result{}, fmt.Errorf("record document: %v", err)
	}

	pages, err := p.embedPages(ctx, ownerID, documentID, file)
	if err != nil {
		if uerr := p.documents.UpdateDocumentStatus(ctx, ownerID, documentID, store.DocumentStatusFailed, 0); uerr != nil {
			p.logger.Printf("mark document %s failed: %v", documentID, uerr)
		}
		return Result{}, err
	}

	if err := p.documents.UpdateDocumentStatus(ctx, ownerID, documentID, store.DocumentStatusCompleted, pages); err != nil {
		return Result{}, fmt.Errorf("complete document: %v", err)
	}
	return Result{DocumentID: documentID, Filename: file.Filename, PageCount: pages}, nil
}

func (p *Pipeline) embedPages(ctx context.Context, ownerID, documentID string, file Upload) (int, error) {
	pages, err := p.extractor.ExtractPages(ctx, file.Filename, file.Data)
	if err != nil {
		return 0, fmt.Errorf("extract pages: %v", err)
	}

	// Blank pages are excluded from embedding rather than routed to OCR.
	var valid []Page
	for _, page := range pages {
		if strings.TrimSpace(page.Content) == "" {
			continue
		}
		valid = append(valid, page)
	}
	p.logger.Printf("document %s: %d pages extracted, %d with content", documentID, len(pages), len(valid))
	if len(valid) == 0 {
		return 0, nil
	}

	texts := make([]string, len(valid))
	for i, page := range valid {
		texts[i] = page.Content
	}
	vectors, err := p.provider.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed pages: %v", err)
	}
	if len(vectors) != len(valid) {
		return 0, fmt.Errorf("embedding count mismatch: got %d for %d pages", len(vectors), len(valid))
	}

	records := make([]vectorstore.Record, len(valid))
	for i, page := range valid {
		records[i] = vectorstore.Record{
			OwnerID:    ownerID,
			DocumentID: documentID,
			Page:       page.Number,
			Text:       page.Content,
			Vector:     vectors[i],
		}
	}
	if _, err := p.vectors.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("store embeddings: %v", err)
	}
	telemetry.PagesIngested.Add(float64(len(valid)))
	return len(valid), nil
}
