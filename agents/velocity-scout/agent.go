package velocityscout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"velocity-scout/agents/velocity-scout/tasks"
	"velocity-scout/internal/models"
	"velocity-scout/shared/config"
	"velocity-scout/shared/email"
	"velocity-scout/shared/scheduler"
)

// TaskRunner starts background discovery and sync tasks.
type TaskRunner interface {
	StartDiscovery(ctx context.Context, params models.SearchParams) (<-chan models.Event, error)
	StartSync(ctx context.Context, direction models.Direction) (<-chan models.Event, error)
}

// APIKeyFunc returns the YouTube API key to search with.
type APIKeyFunc func() (string, error)

type reportSender interface {
	SendReport(report *models.DigestReport) error
}

// ScoutMetrics summarizes one scheduled run.
type ScoutMetrics struct {
	Keywords int
	Found    int
	Failed   int
	Synced   bool
}

func (m ScoutMetrics) GetSummary() string {
	summary := fmt.Sprintf("searched %d keywords, found %d videos, %d failed", m.Keywords, m.Found, m.Failed)
	if m.Synced {
		summary += ", uploaded database"
	}
	return summary
}

// ScoutAgent implements the scheduler.Agent interface. Each run searches
// every configured keyword, optionally uploads the database and mails a
// digest of the ranked results.
type ScoutAgent struct {
	config      *config.Config
	tasks       TaskRunner
	apiKey      APIKeyFunc
	syncEnabled func() bool
	emailSender reportSender
	now         func() time.Time
}

func NewScoutAgent(cfg *config.Config, runner TaskRunner, apiKey APIKeyFunc, syncEnabled func() bool) *ScoutAgent {
	if syncEnabled == nil {
		syncEnabled = func() bool { return cfg.Sync.Enabled }
	}
	return &ScoutAgent{
		config:      cfg,
		tasks:       runner,
		apiKey:      apiKey,
		syncEnabled: syncEnabled,
		now:         time.Now,
	}
}

func (a *ScoutAgent) Name() string {
	return "Velocity Scout"
}

func (a *ScoutAgent) Initialize() error {
	log.Info().Msgf("Initializing %s...", a.Name())

	if len(a.config.Search.Keywords) == 0 {
		return fmt.Errorf("no search keywords configured (search.keywords)")
	}
	if _, err := a.apiKey(); err != nil {
		return fmt.Errorf("failed to resolve YouTube API key: %w", err)
	}

	if a.emailSender == nil && a.config.Email.Enabled() {
		a.emailSender = email.NewSender(&a.config.Email)
		log.Info().Str("to", a.config.Email.ToEmail).Msg("Email sender initialized")
	}

	return nil
}

func (a *ScoutAgent) RunOnce(ctx context.Context, events *scheduler.AgentEvents) error {
	startTime := time.Now()

	apiKey, err := a.apiKey()
	if err != nil {
		return fmt.Errorf("failed to resolve YouTube API key: %w", err)
	}

	metrics := ScoutMetrics{Keywords: len(a.config.Search.Keywords)}
	report := &models.DigestReport{Date: a.now()}

	for _, keyword := range a.config.Search.Keywords {
		params := a.config.SearchDefaults(keyword)
		params.APIKey = apiKey

		kr := a.discover(ctx, params)
		if kr.Error != "" {
			metrics.Failed++
		}
		metrics.Found += len(kr.Items)
		report.Keywords = append(report.Keywords, kr)
	}

	if metrics.Failed == metrics.Keywords && metrics.Keywords > 0 {
		duration := time.Since(startTime)
		err := fmt.Errorf("all %d keyword searches failed: %s", metrics.Failed, report.Keywords[0].Error)
		events.OnCriticalFailure(err, duration)
		return err
	}
	if metrics.Failed > 0 {
		events.OnPartialFailure(fmt.Errorf("%d of %d keyword searches failed", metrics.Failed, metrics.Keywords), time.Since(startTime))
	}

	if a.syncEnabled() {
		if err := a.upload(ctx); err != nil {
			events.OnPartialFailure(err, time.Since(startTime))
		} else {
			metrics.Synced = true
		}
	}

	if a.emailSender != nil && report.TotalItems() > 0 {
		log.Info().Int("videos", report.TotalItems()).Msg("Sending email digest")
		if err := a.emailSender.SendReport(report); err != nil {
			events.OnPartialFailure(fmt.Errorf("failed to send email digest: %w", err), time.Since(startTime))
		}
	}

	events.OnSuccess(metrics, time.Since(startTime))
	return nil
}

func (a *ScoutAgent) discover(ctx context.Context, params models.SearchParams) models.KeywordReport {
	kr := models.KeywordReport{Keyword: params.Keyword}

	ch, err := a.tasks.StartDiscovery(ctx, params)
	if err != nil {
		kr.Error = err.Error()
		return kr
	}

	terminal, ok := tasks.Await(ch, func(ev models.Event) {
		log.Debug().Str("run_id", ev.RunID).Msg(ev.Message)
	})
	switch {
	case !ok:
		kr.Error = "discovery ended without a result"
	case terminal.Kind == models.EventResult:
		kr.Items = terminal.Items
		log.Info().Str("keyword", params.Keyword).Int("found", len(kr.Items)).Msg("Keyword searched")
	default:
		kr.Error = terminal.Message
		log.Warn().Str("keyword", params.Keyword).Msg(terminal.Message)
	}
	return kr
}

func (a *ScoutAgent) upload(ctx context.Context) error {
	outcome, err := RunSync(ctx, a.tasks, models.DirectionUpload)
	if err != nil {
		return err
	}
	if outcome.Status == models.SyncError {
		return errors.New(outcome.Message)
	}
	return nil
}

// RunSync runs one sync through runner and waits for its outcome.
func RunSync(ctx context.Context, runner TaskRunner, direction models.Direction) (models.SyncOutcome, error) {
	ch, err := runner.StartSync(ctx, direction)
	if err != nil {
		return models.SyncOutcome{}, err
	}
	terminal, ok := tasks.Await(ch, nil)
	if !ok || terminal.Sync == nil {
		return models.SyncOutcome{}, fmt.Errorf("sync ended without an outcome")
	}
	return *terminal.Sync, nil
}
