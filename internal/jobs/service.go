// Package jobs ties submission, callback and poll together around the
// status store. Submission never writes a terminal record; only callbacks do.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/drfengyu/dall-e/internal/dispatch"
	"github.com/drfengyu/dall-e/internal/domain"
)

// Service is the deferred-result core.
type Service struct {
	dispatcher  dispatch.Dispatcher
	store       domain.StatusStore
	callbackURL string
	logger      zerolog.Logger
}

func NewService(d dispatch.Dispatcher, store domain.StatusStore, callbackURL string, logger zerolog.Logger) *Service {
	return &Service{dispatcher: d, store: store, callbackURL: callbackURL, logger: logger}
}

// Submit forwards prompt to the worker and returns the id it issued. On
// success a pending marker is written if no record exists yet; failing to
// write it is logged only, because the worker will still call back.
func (s *Service) Submit(ctx context.Context, prompt string) (string, error) {
	jobID, err := s.dispatcher.Dispatch(ctx, dispatch.Request{Prompt: prompt, CallbackURL: s.callbackURL})
	if err != nil {
		return "", err
	}
	if err := s.store.MarkPending(ctx, jobID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("pending marker not written")
	}
	s.logger.Info().Str("job_id", jobID).Msg("job submitted")
	return jobID, nil
}

// OnCallback records the worker's completion notification. Duplicate
// deliveries are not errors.
func (s *Service) OnCallback(ctx context.Context, cb domain.Callback) (domain.WriteOutcome, error) {
	if cb.JobID == "" || (cb.ResultURL == "" && cb.ErrorMessage == "") {
		return domain.Written, domain.ErrMalformedCallback
	}

	var (
		outcome domain.WriteOutcome
		err     error
	)
	if cb.Failed() {
		outcome, err = s.store.Fail(ctx, cb.JobID, domain.KindWorkerFailed, cb.ErrorMessage)
	} else {
		outcome, err = s.store.Complete(ctx, cb.JobID, cb.ResultURL)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return outcome, err
	}

	log := s.logger.With().Str("job_id", cb.JobID).Str("outcome", outcome.String()).Logger()
	switch outcome {
	case domain.Overwritten:
		log.Warn().Msg("callback replaced a different terminal result")
	case domain.Unchanged:
		log.Info().Msg("duplicate callback")
	default:
		log.Info().Bool("failed", cb.Failed()).Msg("job finished")
	}
	return outcome, nil
}

// Poll reports the job state. A missing record is pending, never an error.
func (s *Service) Poll(ctx context.Context, jobID string) (domain.PollResult, error) {
	rec, err := s.store.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PollResult{Status: domain.JobStatusPending}, nil
	}
	if err != nil {
		return domain.PollResult{}, err
	}
	return domain.PollResult{
		Status:       rec.Status,
		Known:        true,
		ResultURL:    rec.ResultURL,
		ErrorKind:    rec.ErrorKind,
		ErrorMessage: rec.ErrorMessage,
	}, nil
}
