package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/bibstore"
	"github.com/GhUserLiu/paperflow/internal/dedup"
	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/observability"
)

// DefaultWorkers bounds per-batch concurrency. The true serialization point
// is the store rate limiter; parallelism beyond it only adds contention on
// the shared cache and run state.
const DefaultWorkers = 5

// AttachmentFetcher downloads a record's full text for attachment upload.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, rawURL, title string) (filename string, data []byte, err error)
}

// Config holds orchestrator settings.
type Config struct {
	// Workers is the size of the worker pool.
	Workers int

	// Collection is the target collection key; created items are added to
	// it when set.
	Collection string

	// BatchTimeout bounds one Run call. Zero means no timeout. On timeout,
	// records already being processed finish their remote calls; records
	// still pending are counted as failures.
	BatchTimeout time.Duration

	// DownloadAttachments enables the PDF download and upload step.
	DownloadAttachments bool
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
}

// Orchestrator processes each record of a batch independently through a
// bounded worker pool: duplicate check, create, then enrichment. One
// record's failure never cancels or corrupts another's.
type Orchestrator struct {
	store       bibstore.Store
	resolver    *dedup.Resolver
	attachments AttachmentFetcher
	cfg         Config
	metrics     *observability.Metrics
	log         zerolog.Logger
}

// New creates an Orchestrator. store must already be throttled; attachments
// may be nil when attachment upload is disabled. metrics may be nil.
func New(store bibstore.Store, resolver *dedup.Resolver, attachments AttachmentFetcher, cfg Config, metrics *observability.Metrics, log zerolog.Logger) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		store:       store,
		resolver:    resolver,
		attachments: attachments,
		cfg:         cfg,
		metrics:     metrics,
		log:         log.With().Str("component", "pipeline").Logger(),
	}
}

// Run ingests the batch and returns an exact summary: every record is
// counted exactly once as a success (created or duplicate) or a failure.
func (o *Orchestrator) Run(ctx context.Context, batch []*domain.Record) Summary {
	start := time.Now()
	batchID := uuid.NewString()
	log := observability.WithBatchContext(o.log, batchID, len(batch))

	if len(batch) == 0 {
		return Summary{BatchID: batchID}
	}

	if o.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.BatchTimeout)
		defer cancel()
	}

	workers := o.cfg.Workers
	if workers > len(batch) {
		workers = len(batch)
	}

	results := make([]Result, len(batch))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					// Batch deadline passed before this record started.
					results[idx] = Result{
						Record:  batch[idx],
						Outcome: OutcomeFailed,
						Err:     fmt.Errorf("batch timeout before processing: %w", err),
					}
					continue
				}
				results[idx] = o.process(ctx, batch[idx], log)
			}
		}()
	}

	for idx := range batch {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	summary := Summary{
		BatchID: batchID,
		Results: results,
		Elapsed: time.Since(start),
	}
	for _, res := range results {
		if res.Outcome.Success() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if res.Outcome == OutcomeDuplicate {
			summary.Duplicates++
		}
	}

	o.metrics.RecordBatch(summary.Elapsed.Seconds())
	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("duplicates", summary.Duplicates).
		Dur("elapsed", summary.Elapsed).
		Msg("batch complete")

	return summary
}

// process runs one record's workflow to a terminal state. Remote calls run
// on a detached context so a batch timeout never interrupts an in-flight
// write; the deadline is instead re-checked before each subsequent step.
func (o *Orchestrator) process(ctx context.Context, rec *domain.Record, log zerolog.Logger) (res Result) {
	key := rec.Key()
	rlog := observability.WithRecordContext(log, key.String(), string(rec.Source))

	defer func() {
		if p := recover(); p != nil {
			rlog.Error().Interface("panic", p).Msg("record workflow panicked")
			res = Result{Record: rec, Outcome: OutcomeFailed, Err: fmt.Errorf("record workflow panic: %v", p)}
		}
		if res.Outcome == OutcomeFailed {
			o.metrics.RecordFailed()
			if res.Err != nil {
				rlog.Error().Err(res.Err).Msg("record failed")
			}
		}
	}()

	parent := ctx
	ctx = context.WithoutCancel(ctx)

	resolution, err := o.resolver.Begin(ctx, key)
	if err != nil {
		return Result{Record: rec, Outcome: OutcomeFailed, Err: fmt.Errorf("duplicate check: %w", err)}
	}
	if resolution.Duplicate {
		rlog.Info().Str("tier", resolution.Tier).Str("item", resolution.ItemKey).Msg("record already stored, skipping")
		return Result{Record: rec, Outcome: OutcomeDuplicate, ItemKey: resolution.ItemKey}
	}

	// The batch deadline is re-checked between workflow steps: the call in
	// flight always finishes, but the next one is not started past it.
	if err := parent.Err(); err != nil {
		o.resolver.Abort(key)
		return Result{Record: rec, Outcome: OutcomeFailed, Err: fmt.Errorf("batch timeout before create: %w", err)}
	}

	itemKey, err := o.store.CreateItem(ctx, rec)
	if err != nil {
		o.resolver.Abort(key)
		return Result{Record: rec, Outcome: OutcomeFailed, Err: fmt.Errorf("create item: %w", err)}
	}
	// Register before any enrichment so concurrent siblings see the claim
	// resolved to a concrete item.
	o.resolver.Commit(key, itemKey)
	o.metrics.RecordCreated()
	rlog.Info().Str("item", itemKey).Msg("created item")

	if o.cfg.Collection != "" {
		if err := parent.Err(); err != nil {
			return enrichmentFailed(rec, itemKey, "add to collection", fmt.Errorf("batch timeout: %w", err))
		}
		if err := o.store.AddToCollection(ctx, itemKey, o.cfg.Collection); err != nil {
			return enrichmentFailed(rec, itemKey, "add to collection", err)
		}
	}

	if o.cfg.DownloadAttachments && o.attachments != nil && rec.PDFURL != "" {
		if err := parent.Err(); err != nil {
			return enrichmentFailed(rec, itemKey, "attachment", fmt.Errorf("batch timeout: %w", err))
		}
		if err := o.attach(ctx, rec, itemKey); err != nil {
			return enrichmentFailed(rec, itemKey, "attachment", err)
		}
	}

	return Result{Record: rec, Outcome: OutcomeCreated, ItemKey: itemKey}
}

// enrichmentFailed builds the failure result for a record whose item was
// created but whose post-create step did not run to completion.
func enrichmentFailed(rec *domain.Record, itemKey, step string, cause error) Result {
	return Result{
		Record:  rec,
		Outcome: OutcomeFailed,
		ItemKey: itemKey,
		Err:     &domain.EnrichmentError{ItemKey: itemKey, Step: step, Cause: cause},
	}
}

func (o *Orchestrator) attach(ctx context.Context, rec *domain.Record, itemKey string) error {
	filename, data, err := o.attachments.Fetch(ctx, rec.PDFURL, rec.Title)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if err := o.store.UploadAttachment(ctx, itemKey, filename, data); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	o.metrics.RecordAttachment()
	return nil
}
