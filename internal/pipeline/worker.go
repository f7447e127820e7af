package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docparse/internal/chunker"
	"github.com/dgallion1/docparse/internal/document"
	"github.com/dgallion1/docparse/internal/pathstore"
)

// Worker processes a single document job.
type Worker struct {
	parser    *Parser
	pathstore *pathstore.Client
	log       *slog.Logger

	maxConcurrentStore int
}

func NewWorker(parser *Parser, ps *pathstore.Client, log *slog.Logger, maxStore int) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if maxStore <= 0 {
		maxStore = 1
	}
	return &Worker{
		parser:             parser,
		pathstore:          ps,
		log:                log,
		maxConcurrentStore: maxStore,
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	// Phase 1: Parse
	doc, err := w.parse(ctx, job, log)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	job.SetParsed(doc.ToolUsed, ContentHashHex([]byte(doc.Content)))

	// Phase 1.5: Dedup check
	if !job.Force {
		existing, err := w.pathstore.FindDuplicate(ctx, job.ContentHash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if existing != "" {
			log.Info("duplicate document, skipping", "existing_doc_id", existing)
			job.SetStatus(StatusDupSkipped, "dedup")
			return
		}
	}

	// Phase 2: Chunk
	job.SetStatus(StatusChunking, "chunking")
	chunks := chunker.ChunkDocument(doc, job.Chunking)
	tokens := chunker.TotalTokens(chunks)
	job.SetChunks(len(chunks), tokens)
	log.Info("chunked document", "chunks", len(chunks), "estimated_tokens", tokens)

	if len(chunks) == 0 {
		log.Warn("no chunks produced")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "chunking")
		return
	}

	// Phase 3: Store chunks in pathstore with bounded concurrency.
	job.SetStatus(StatusStoring, "storing")
	stored := w.storeChunks(ctx, job, chunks, log)
	log.Info("storage complete", "stored", stored, "total", len(chunks))
	if stored == 0 {
		job.SetStatus(StatusFailed, "storing")
		return
	}
	hadErrors := stored < len(chunks)
	if !hadErrors {
		w.linkChunks(ctx, job, chunks, log)
	}

	// Write document metadata.
	meta := pathstore.DocumentMeta{
		DocID:       job.DocID,
		FileName:    doc.FileName,
		FileType:    string(doc.FileType),
		FileSize:    doc.FileSize,
		ToolUsed:    doc.ToolUsed,
		ContentHash: job.ContentHash,
		Pages:       len(doc.Pages),
		Chunks:      stored,
		CreatedAt:   job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if doc.PdfAnalysis != nil {
		scanned := doc.PdfAnalysis.Type == document.PdfScanned
		meta.Scanned = &scanned
	}
	metaErr := w.pathstore.PutNode(ctx, pathstore.MetaKey(job.DocID), pathstore.NodeRequest{
		Value:      meta,
		MemoryType: "document",
		Salience:   0.5,
		Source:     "docparse:" + job.DocID,
	})
	if metaErr != nil {
		log.Error("meta write failed", "error", metaErr)
		job.AddError(fmt.Sprintf("meta: %s", metaErr))
		hadErrors = true
	}

	// Only a fully published document may satisfy later dedup checks.
	if hadErrors {
		job.SetStatus(StatusPartial, "done")
		return
	}
	hashErr := w.pathstore.PutNode(ctx, pathstore.HashKey(job.ContentHash, job.DocID), pathstore.NodeRequest{
		Value: map[string]any{
			"file_name":  doc.FileName,
			"created_at": job.CreatedAt.UTC().Format(time.RFC3339),
		},
		MemoryType: "document",
		Salience:   0.1,
		Source:     "docparse:" + job.DocID,
	})
	if hashErr != nil {
		log.Error("hash index write failed", "error", hashErr)
		job.AddError(fmt.Sprintf("hash index: %s", hashErr))
		job.SetStatus(StatusPartial, "done")
		return
	}
	job.SetStatus(StatusCompleted, "done")
}

// parse runs the parser on the job input. URL jobs retry transient
// download failures with backoff.
func (w *Worker) parse(ctx context.Context, job *Job, log *slog.Logger) (*document.Document, error) {
	if job.SourceURL == "" {
		job.SetStatus(StatusParsing, "parsing")
		dir, err := os.MkdirTemp("", "docparse-job-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		// The upload keeps its own name so the extension drives type detection.
		path := filepath.Join(dir, job.Filename)
		if err := os.WriteFile(path, job.FileData(), 0o600); err != nil {
			return nil, fmt.Errorf("write upload: %w", err)
		}
		job.releaseFileData()
		return w.parser.Parse(ctx, path, job.Parse)
	}

	job.SetStatus(StatusFetching, "fetching")
	var lastErr error
	for attempt := range MaxRetries {
		doc, err := w.parser.Parse(ctx, job.SourceURL, job.Parse)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
		log.Warn("retryable download error", "attempt", attempt, "error", err)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (w *Worker) storeChunks(ctx context.Context, job *Job, chunks []chunker.Chunk, log *slog.Logger) int {
	var stored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.maxConcurrentStore)

	for _, c := range chunks {
		g.Go(func() error {
			key := pathstore.ChunkKey(job.DocID, c.ID)
			err := w.pathstore.PutNode(gctx, key, pathstore.NodeRequest{
				Value: map[string]any{
					"text":     c.Text,
					"metadata": c.Metadata,
				},
				MemoryType: "document_chunk",
				Salience:   0.3,
				Source:     "docparse:" + job.DocID,
			})
			if err != nil {
				log.Error("store failed", "key", key, "error", err)
				job.AddError(fmt.Sprintf("store %s: %s", key, err))
				return nil
			}
			stored.Add(1)
			job.IncrChunksStored()
			return nil
		})
	}
	_ = g.Wait()
	return int(stored.Load())
}

// linkChunks records reading order between consecutive chunks. Link
// failures are logged but do not fail the job.
func (w *Worker) linkChunks(ctx context.Context, job *Job, chunks []chunker.Chunk, log *slog.Logger) {
	for i := 1; i < len(chunks); i++ {
		err := w.pathstore.PutLink(ctx, pathstore.LinkRequest{
			From:    pathstore.ChunkKey(job.DocID, chunks[i-1].ID),
			To:      pathstore.ChunkKey(job.DocID, chunks[i].ID),
			Weight:  1,
			Summary: "next_chunk",
		})
		if err != nil {
			log.Warn("chunk link failed", "from", chunks[i-1].ID, "error", err)
			return
		}
	}
}
