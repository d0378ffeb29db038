package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/ratelimit"
	"github.com/spec-kit/picto-request-service/internal/repository"
	"github.com/spec-kit/picto-request-service/internal/tracker"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

const (
	resolutionExcerptLength = 200
	defaultReportListLimit  = 30
	defaultReportCacheTTL   = 5 * time.Minute
	webhookPushTimeout      = 30 * time.Second
)

// ReportService mirrors bug and improvement reports to the external tracker.
type ReportService struct {
	client     tracker.Client
	cache      tracker.ListingCache
	limiter    ratelimit.Limiter
	reads      repository.ReportReadRepository
	deliveries tracker.DeliveryLog
	live       LivePublisher
	secret     []byte
	cacheTTL   time.Duration
	listLimit  int
	logger     *zap.Logger

	pushes sync.WaitGroup
}

// ReportDependencies bundles collaborators for the report service.
type ReportDependencies struct {
	// Client is nil when the tracker is not configured.
	Client        tracker.Client
	Cache         tracker.ListingCache
	Limiter       ratelimit.Limiter
	ReadRepo      repository.ReportReadRepository
	Deliveries    tracker.DeliveryLog
	Live          LivePublisher
	WebhookSecret string
	CacheTTL      time.Duration
	ListLimit     int
	Logger        *zap.Logger
}

// ReportSubmitInput describes a report submission.
type ReportSubmitInput struct {
	Type   string
	Title  string
	Fields map[string]string
}

// WebhookOutcome tells the caller what happened to an accepted delivery.
type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookDuplicate WebhookOutcome = "duplicate"
)

// ReportResolvedPush is the live frame sent to a reporter when their issue closes.
type ReportResolvedPush struct {
	Type       string `json:"type"`
	Issue      int64  `json:"issue"`
	Title      string `json:"title"`
	Resolution string `json:"resolution"`
	URL        string `json:"url"`
}

// NewReportService creates the service.
func NewReportService(deps ReportDependencies) *ReportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultReportCacheTTL
	}
	limit := deps.ListLimit
	if limit <= 0 {
		limit = defaultReportListLimit
	}
	cache := deps.Cache
	if cache == nil {
		cache = tracker.NewMemoryCache(nil)
	}
	return &ReportService{
		client:     deps.Client,
		cache:      cache,
		limiter:    deps.Limiter,
		reads:      deps.ReadRepo,
		deliveries: deps.Deliveries,
		live:       deps.Live,
		secret:     []byte(deps.WebhookSecret),
		cacheTTL:   ttl,
		listLimit:  limit,
		logger:     logger,
	}
}

// SubmitReport creates a tracker issue on behalf of actor. The quota is
// consumed before the outbound call; a failed call leaves no local trace.
func (s *ReportService) SubmitReport(ctx context.Context, actor domain.Actor, input ReportSubmitInput) (*tracker.CreatedIssue, error) {
	kind := domain.ReportType(strings.ToLower(strings.TrimSpace(input.Type)))
	if !kind.Valid() {
		return nil, apperrors.NewValidationError("type must be bug or improvement", map[string]any{"field": "type"})
	}
	title := strings.TrimSpace(input.Title)
	if err := validateText("title", title, domain.MaxTitleLength); err != nil {
		return nil, err
	}
	body, err := tracker.FormatBody(kind, input.Fields, actor.Login)
	if err != nil {
		var fieldErr *tracker.FieldError
		if errors.As(err, &fieldErr) {
			return nil, apperrors.NewValidationError(fieldErr.Error(), map[string]any{"field": fieldErr.Field})
		}
		return nil, apperrors.MapError(err)
	}
	if s.client == nil {
		return nil, apperrors.NewUnavailable("issue tracker is not configured")
	}

	if s.limiter != nil {
		decision, err := s.limiter.Allow(ctx, actor.Login)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !decision.Allowed {
			return nil, apperrors.NewRateLimited("too many reports, try again later", map[string]any{
				"reset_at":            decision.ResetAt.UTC().Format(time.RFC3339),
				"retry_after_seconds": int(time.Until(decision.ResetAt).Seconds()) + 1,
			})
		}
	}

	issue, err := s.client.CreateIssue(ctx, kind, title, body)
	if err != nil {
		s.logger.Warn("tracker issue creation failed", zap.String("actor", actor.Login), zap.Error(err))
		return nil, apperrors.NewUpstreamError("issue tracker request failed", err)
	}
	s.cache.Invalidate(ctx)
	s.logger.Info("report submitted",
		zap.String("actor", actor.Login),
		zap.String("type", string(kind)),
		zap.Int64("external_id", issue.ExternalID))
	return issue, nil
}

// ListReports returns the merged listing of both report kinds, newest first.
func (s *ReportService) ListReports(ctx context.Context) ([]domain.Report, error) {
	if items, ok := s.cache.Get(ctx); ok {
		return items, nil
	}
	if s.client == nil {
		return []domain.Report{}, nil
	}

	var merged []domain.Report
	for _, kind := range []domain.ReportType{domain.ReportBug, domain.ReportImprovement} {
		items, err := s.client.ListIssues(ctx, kind, s.listLimit)
		if err != nil {
			return nil, apperrors.NewUpstreamError("issue tracker request failed", err)
		}
		merged = append(merged, items...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > s.listLimit {
		merged = merged[:s.listLimit]
	}
	if merged == nil {
		merged = []domain.Report{}
	}
	s.enrichResolutions(ctx, merged)

	s.cache.Set(ctx, merged, s.cacheTTL)
	return merged, nil
}

// ListNotificationsFor returns closed reports filed by actor with their
// acknowledgement state.
func (s *ReportService) ListNotificationsFor(ctx context.Context, actor domain.Actor) ([]domain.ReportNotification, error) {
	if s.client == nil {
		return []domain.ReportNotification{}, nil
	}
	closed, err := s.client.ListClosedMentioning(ctx, tracker.ReporterMarker(actor.Login), s.listLimit)
	if err != nil {
		return nil, apperrors.NewUpstreamError("issue tracker request failed", err)
	}

	mine := make([]domain.Report, 0, len(closed))
	for _, report := range closed {
		// the remote search is fuzzy; keep only exact reporter matches
		if strings.EqualFold(report.Reporter, actor.Login) {
			mine = append(mine, report)
		}
	}
	s.enrichResolutions(ctx, mine)

	ids := make([]int64, len(mine))
	for i, report := range mine {
		ids[i] = report.ExternalID
	}
	seen := map[int64]bool{}
	if len(ids) > 0 {
		seen, err = s.reads.ListSeen(ctx, actor.Login, ids)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	out := make([]domain.ReportNotification, len(mine))
	for i, report := range mine {
		out[i] = domain.ReportNotification{Report: report, Read: seen[report.ExternalID]}
	}
	return out, nil
}

// MarkReportNotificationsRead records that actor acknowledged the given
// closed reports.
func (s *ReportService) MarkReportNotificationsRead(ctx context.Context, actor domain.Actor, ids []int64) error {
	if len(ids) == 0 {
		return apperrors.NewValidationError("ids required", nil)
	}
	for _, id := range ids {
		if id <= 0 {
			return apperrors.NewValidationError("invalid report id", map[string]any{"id": id})
		}
	}
	return apperrors.MapError(s.reads.MarkSeen(ctx, actor.Login, ids))
}

// HandleWebhook authenticates a tracker delivery over the raw body and, for
// an issue-closed event carrying a reporter marker, invalidates the listing
// and pushes a resolution event to the reporter in the background.
func (s *ReportService) HandleWebhook(ctx context.Context, body []byte, signature, deliveryID string) (WebhookOutcome, error) {
	if err := tracker.VerifySignature(s.secret, body, signature); err != nil {
		if errors.Is(err, tracker.ErrSecretUnconfigured) {
			return "", apperrors.NewUnavailable("webhook secret is not configured")
		}
		s.logger.Warn("webhook rejected", zap.Error(err))
		return "", apperrors.NewUnauthorized("invalid webhook signature")
	}

	var event gitlab.IssueEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return "", apperrors.NewValidationError("malformed webhook payload", nil)
	}

	// Only decodable deliveries are recorded so a rejected one can be retried.
	if deliveryID != "" && s.deliveries != nil {
		first, err := s.deliveries.FirstSeen(ctx, deliveryID)
		if err != nil {
			s.logger.Warn("webhook delivery log unavailable", zap.String("delivery_id", deliveryID), zap.Error(err))
		} else if !first {
			return WebhookDuplicate, nil
		}
	}

	if event.ObjectKind != "issue" || event.ObjectAttributes.Action != "close" {
		return WebhookIgnored, nil
	}
	reporter, ok := tracker.ExtractReporter(event.ObjectAttributes.Description)
	if !ok {
		s.logger.Info("closed issue without reporter marker", zap.Int64("issue", int64(event.ObjectAttributes.IID)))
		return WebhookIgnored, nil
	}

	s.cache.Invalidate(ctx)

	push := ReportResolvedPush{
		Type:  "report_resolved",
		Issue: int64(event.ObjectAttributes.IID),
		Title: event.ObjectAttributes.Title,
		URL:   event.ObjectAttributes.URL,
	}
	s.pushes.Add(1)
	go s.pushResolution(reporter, push)
	return WebhookProcessed, nil
}

// Wait blocks until every background webhook push has finished.
func (s *ReportService) Wait() {
	s.pushes.Wait()
}

func (s *ReportService) pushResolution(reporter string, push ReportResolvedPush) {
	defer s.pushes.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("webhook push panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), webhookPushTimeout)
	defer cancel()

	if s.client != nil {
		note, err := s.client.LastNote(ctx, push.Issue)
		if err != nil {
			s.logger.Warn("resolution lookup failed", zap.Int64("issue", push.Issue), zap.Error(err))
		} else {
			push.Resolution = tracker.Excerpt(note, resolutionExcerptLength)
		}
	}
	if s.live == nil {
		return
	}
	delivered := s.live.Publish(reporter, push)
	s.logger.Info("report resolution pushed",
		zap.String("reporter", reporter),
		zap.Int64("issue", push.Issue),
		zap.Int("connections", delivered))
}

func (s *ReportService) enrichResolutions(ctx context.Context, reports []domain.Report) {
	for i := range reports {
		if reports[i].State != domain.ReportClosed || reports[i].Resolution != "" {
			continue
		}
		note, err := s.client.LastNote(ctx, reports[i].ExternalID)
		if err != nil {
			s.logger.Warn("resolution lookup failed", zap.Int64("issue", reports[i].ExternalID), zap.Error(err))
			continue
		}
		reports[i].Resolution = tracker.Excerpt(note, resolutionExcerptLength)
	}
}
