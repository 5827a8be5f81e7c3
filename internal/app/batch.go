package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

const (
	TopicRunStarted   = "run.started"
	TopicRunFinished  = "run.finished"
	TopicWorldFetched = "world.fetched"
	TopicWorldCached  = "world.cached"
	TopicWorldFailed  = "world.failed"
)

type WorldFetcher interface {
	Fetch(ctx context.Context, sourceURL string) FetchResult
}

// BatchRunner traite une liste d'URLs strictement en séquence avec une session partagée.
type BatchRunner struct {
	logger  zerolog.Logger
	fetcher WorldFetcher
	errLog  ports.ErrorLog
	bus     ports.EventBus
	runID   string

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewBatchRunner; errLog et bus sont optionnels.
func NewBatchRunner(logger zerolog.Logger, fetcher WorldFetcher, errLog ports.ErrorLog, bus ports.EventBus) *BatchRunner {
	return &BatchRunner{
		logger:  logger.With().Str("component", "batch").Logger(),
		fetcher: fetcher,
		errLog:  errLog,
		bus:     bus,
		sleep:   sleepContext,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithRunID renvoie une copie qui étiquette ses logs et événements.
func (r *BatchRunner) WithRunID(id string) *BatchRunner {
	cp := *r
	cp.runID = id
	cp.logger = r.logger.With().Str("run", id).Logger()
	return &cp
}

type RunEvent struct {
	RunID   string              `json:"runId,omitempty"`
	Index   int                 `json:"index"`
	Total   int                 `json:"total"`
	URL     string              `json:"url,omitempty"`
	WorldID string              `json:"worldId,omitempty"`
	Status  domain.FetchStatus  `json:"status,omitempty"`
	Code    string              `json:"code,omitempty"`
	Reason  string              `json:"reason,omitempty"`
	Report  *domain.BatchReport `json:"report,omitempty"`
}

// Run ne s'interrompt qu'entre deux items: l'appel en cours termine toujours.
func (r *BatchRunner) Run(ctx context.Context, urls []string, delay time.Duration) domain.BatchReport {
	report := domain.BatchReport{
		Total:     len(urls),
		Failures:  []domain.FailureEntry{},
		StartedAt: r.now(),
	}
	r.logger.Info().Int("total", len(urls)).Dur("delay", delay).Msg("run started")
	r.publish(TopicRunStarted, RunEvent{Total: len(urls)})

	for i, u := range urls {
		if ctx.Err() != nil {
			report.Canceled = true
			r.logger.Warn().Int("done", i).Int("total", len(urls)).Msg("run canceled")
			break
		}

		res := r.fetcher.Fetch(context.WithoutCancel(ctx), u)
		ev := RunEvent{Index: i, Total: len(urls), URL: u, WorldID: res.World.ID, Status: res.Status}

		switch res.Status {
		case domain.FetchSuccess:
			report.Succeeded++
			r.logger.Info().Str("world", res.World.ID).Str("name", res.World.Name).Msg("world fetched")
			r.publish(TopicWorldFetched, ev)
		case domain.FetchCached:
			report.Cached++
			r.logger.Debug().Str("world", res.World.ID).Msg("world cached")
			r.publish(TopicWorldCached, ev)
		default:
			report.Failed++
			code, reason := failureReason(res.Err)
			report.Failures = append(report.Failures, domain.FailureEntry{URL: u, Reason: reason})
			ev.Code, ev.Reason = code, reason
			r.logger.Warn().Str("url", u).Str("code", code).Msg("world failed")
			r.publish(TopicWorldFailed, ev)
		}
		countThumbnail(&report.Thumbnails, res.Thumbnail)

		if res.Status == domain.FetchFailure && res.Err != nil && res.Err.Code == CodeAuthError {
			report.Aborted = true
			for _, rest := range urls[i+1:] {
				report.Failed++
				report.Failures = append(report.Failures, domain.FailureEntry{URL: rest, Reason: domain.AbortedReason})
			}
			r.logger.Error().Int("skipped", len(urls)-i-1).Msg("run aborted on auth failure")
			break
		}

		if res.Network && delay > 0 && i < len(urls)-1 {
			// Une annulation pendant la pause est vue au tour suivant.
			_ = r.sleep(ctx, delay)
		}
	}

	report.FinishedAt = r.now()
	if r.errLog != nil {
		if err := r.errLog.Append(context.WithoutCancel(ctx), report); err != nil {
			r.logger.Error().Err(err).Msg("write error log")
		}
	}

	r.logger.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("cached", report.Cached).
		Int("failed", report.Failed).
		Int("thumbnailsDownloaded", report.Thumbnails.Downloaded).
		Int("thumbnailsSkipped", report.Thumbnails.Skipped).
		Int("thumbnailsFailed", report.Thumbnails.Failed).
		Bool("aborted", report.Aborted).
		Bool("canceled", report.Canceled).
		Dur("duration", report.Duration()).
		Msg("run finished")
	final := report
	r.publish(TopicRunFinished, RunEvent{Total: report.Total, Report: &final})
	return report
}

func (r *BatchRunner) publish(topic string, ev RunEvent) {
	if r.bus == nil {
		return
	}
	ev.RunID = r.runID
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	r.bus.Publish(topic, b)
}

func failureReason(err *CodedError) (code, reason string) {
	if err == nil {
		return CodeProviderError, CodeProviderError + ": unknown failure"
	}
	return err.Code, err.Reason()
}

func countThumbnail(s *domain.ThumbnailStats, o domain.AssetOutcome) {
	switch o {
	case domain.AssetDownloaded:
		s.Downloaded++
	case domain.AssetSkipped:
		s.Skipped++
	case domain.AssetFailed:
		s.Failed++
	}
}
