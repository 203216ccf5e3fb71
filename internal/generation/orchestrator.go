// Package generation runs the plan generation pipeline: status transitions,
// the provider call, structural validation of the output, persistence and
// usage accounting.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageza/platecoach/backend/config"
	"github.com/pageza/platecoach/backend/internal/apperrors"
	"github.com/pageza/platecoach/backend/internal/audit"
	"github.com/pageza/platecoach/backend/internal/jobs"
	"github.com/pageza/platecoach/backend/internal/llm"
	"github.com/pageza/platecoach/backend/internal/metrics"
	"github.com/pageza/platecoach/backend/internal/models"
	"github.com/pageza/platecoach/backend/internal/planparser"
	"github.com/pageza/platecoach/backend/internal/questionnaire"
	"github.com/pageza/platecoach/backend/internal/repository"
	"github.com/pageza/platecoach/backend/internal/textutil"
)

// EventName is the job event that triggers a generation run.
const EventName = "plan/generate"

// FailureMessage is shown to the user once every attempt has failed. The
// underlying error is only logged.
const FailureMessage = "We couldn't generate this plan after several attempts. Please try again."

// Payload is the job data for one generation run.
type Payload struct {
	PlanID        uuid.UUID                         `json:"planId"`
	ClientID      uuid.UUID                         `json:"clientId"`
	TenantID      uuid.UUID                         `json:"tenantId"`
	Questionnaire questionnaire.ClientQuestionnaire `json:"questionnaire"`
	BusinessName  string                            `json:"businessName,omitempty"`
}

// PlanStore is the subset of the plan repository the orchestrator writes through.
type PlanStore interface {
	MarkGenerating(ctx context.Context, tenantID, planID uuid.UUID) (bool, error)
	Complete(ctx context.Context, c repository.Completion) (bool, error)
	Fail(ctx context.Context, tenantID, planID uuid.UUID, message string) (bool, error)
}

// Orchestrator executes generation runs. Every step may be re-executed by the
// job runner, so each one is safe to repeat.
type Orchestrator struct {
	plans    PlanStore
	provider llm.Provider
	audit    audit.Sink
	cfg      config.GenerationConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(plans PlanStore, provider llm.Provider, sink audit.Sink, cfg config.GenerationConfig, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		plans:    plans,
		provider: provider,
		audit:    sink,
		cfg:      cfg,
		log:      log.Named("generation"),
		now:      time.Now,
	}
}

// Cost returns the USD estimate for the given token usage.
func Cost(inputTokens, outputTokens int, cfg config.GenerationConfig) float64 {
	return float64(inputTokens)*cfg.InputCostPerMillion/1e6 +
		float64(outputTokens)*cfg.OutputCostPerMillion/1e6
}

// Run performs one attempt. Any error is retryable by the caller. A plan that
// has already completed or failed is left alone and the run succeeds.
func (o *Orchestrator) Run(ctx context.Context, p Payload) error {
	log := o.log.With(zap.String("plan_id", p.PlanID.String()), zap.String("tenant_id", p.TenantID.String()))

	started, err := o.plans.MarkGenerating(ctx, p.TenantID, p.PlanID)
	if err != nil {
		return err
	}
	if !started {
		log.Info("plan already settled, skipping generation")
		return nil
	}

	prompt, err := BuildPrompt(&p.Questionnaire, p.BusinessName)
	if err != nil {
		return err
	}

	start := o.now()
	res, err := o.provider.Generate(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    prompt,
		Model:     o.cfg.Model,
		MaxTokens: o.cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("generation provider failed: %w", err)
	}
	metrics.TokensTotal.WithLabelValues("input").Add(float64(res.InputTokens))
	metrics.TokensTotal.WithLabelValues("output").Add(float64(res.OutputTokens))

	text := textutil.StripEmoji(res.Text)
	parsed := planparser.Parse(text)
	if len(parsed.Sections) == 0 {
		log.Warn("provider output has no recognised sections", zap.Int("length", len(text)))
		return fmt.Errorf("plan %s: %w", p.PlanID, apperrors.ErrStructuralGeneration)
	}
	metrics.GenerationDuration.Observe(o.now().Sub(start).Seconds())

	cost := Cost(res.InputTokens, res.OutputTokens, o.cfg)
	transitioned, err := o.plans.Complete(ctx, repository.Completion{
		TenantID:     p.TenantID,
		PlanID:       p.PlanID,
		Text:         text,
		CostUSD:      cost,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		Month:        models.UsageMonth(o.now()),
	})
	if err != nil {
		return err
	}
	if !transitioned {
		log.Info("plan settled during generation, skipping usage and audit")
		return nil
	}

	metrics.PlansTotal.WithLabelValues("completed").Inc()
	o.audit.Record(ctx, audit.Event{
		TenantID:     p.TenantID,
		Action:       audit.ActionPlanGenerated,
		ResourceType: audit.ResourcePlan,
		ResourceID:   p.PlanID.String(),
		Metadata: map[string]any{
			"sections":      len(parsed.Sections),
			"cost_usd":      cost,
			"input_tokens":  res.InputTokens,
			"output_tokens": res.OutputTokens,
		},
	})
	log.Info("plan generated",
		zap.Int("sections", len(parsed.Sections)),
		zap.Float64("cost_usd", cost),
	)
	return nil
}

// Fail is the terminal failure step. It runs once after the last attempt and
// never touches a plan that has already settled.
func (o *Orchestrator) Fail(ctx context.Context, p Payload, attempts int, cause error) {
	log := o.log.With(zap.String("plan_id", p.PlanID.String()), zap.String("tenant_id", p.TenantID.String()))
	log.Error("plan generation failed", zap.Int("attempts", attempts), zap.Error(cause))

	changed, err := o.plans.Fail(ctx, p.TenantID, p.PlanID, FailureMessage)
	if err != nil {
		log.Error("failed to mark plan failed", zap.Error(err))
		return
	}
	if !changed {
		log.Info("plan already settled, not marking failed")
		return
	}
	metrics.PlansTotal.WithLabelValues("failed").Inc()
	o.audit.Record(ctx, audit.Event{
		TenantID:     p.TenantID,
		Action:       audit.ActionPlanFailed,
		ResourceType: audit.ResourcePlan,
		ResourceID:   p.PlanID.String(),
		Metadata: map[string]any{
			"attempts": attempts,
			"reason":   failureReason(cause),
		},
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrStructuralGeneration):
		return "structural"
	case errors.Is(err, apperrors.ErrProviderTransient):
		return "provider"
	default:
		return "internal"
	}
}

// Handler adapts the orchestrator to the job runner.
func (o *Orchestrator) Handler() jobs.Handler {
	return jobs.Handler{
		Run: func(ctx context.Context, ev jobs.Event) error {
			p, err := decodePayload(ev)
			if err != nil {
				return backoff.Permanent(err)
			}
			err = o.Run(ctx, p)
			if err != nil && ev.Attempt < o.cfg.MaxAttempts {
				metrics.PlansTotal.WithLabelValues("retried").Inc()
			}
			return err
		},
		OnFailure: func(ctx context.Context, ev jobs.Event, cause error) {
			p, err := decodePayload(ev)
			if err != nil {
				o.log.Error("dropping undecodable generation event", zap.String("job_id", ev.ID), zap.Error(err))
				return
			}
			o.Fail(ctx, p, ev.Attempt, cause)
		},
	}
}

func decodePayload(ev jobs.Event) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return p, fmt.Errorf("failed to decode generation payload: %w", err)
	}
	if p.PlanID == uuid.Nil || p.TenantID == uuid.Nil {
		return p, errors.New("generation payload missing plan or tenant id")
	}
	return p, nil
}
