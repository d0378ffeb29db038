package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/ratelimit"
	"github.com/spec-kit/picto-request-service/internal/service"
	"github.com/spec-kit/picto-request-service/internal/tracker"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

const webhookSecret = "hook-secret"

func closedIssueEvent(iid int, description string) []byte {
	return []byte(fmt.Sprintf(`{
		"object_kind": "issue",
		"object_attributes": {
			"iid": %d,
			"title": "Export crashes",
			"description": %q,
			"state": "closed",
			"action": "close",
			"url": "https://tracker.example/issues/%d"
		}
	}`, iid, description, iid))
}

var _ = Describe("ReportService", func() {
	var (
		ctx     context.Context
		client  *fakeTracker
		live    *recordingLive
		reads   *memReportReadRepo
		now     time.Time
		limiter *ratelimit.FixedWindow
		svc     *service.ReportService
		bugBody = map[string]string{"description": "Export crashes on large files"}
	)

	build := func(c tracker.Client, secret string) *service.ReportService {
		return service.NewReportService(service.ReportDependencies{
			Client:        c,
			Cache:         tracker.NewMemoryCache(func() time.Time { return now }),
			Limiter:       limiter,
			ReadRepo:      reads,
			Deliveries:    tracker.NewMemoryDeliveryLog(time.Hour, func() time.Time { return now }),
			Live:          live,
			WebhookSecret: secret,
			CacheTTL:      5 * time.Minute,
			ListLimit:     3,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		client = &fakeTracker{}
		live = &recordingLive{}
		reads = newMemReportReadRepo()
		limiter = ratelimit.NewFixedWindow(5, time.Hour, ratelimit.WithClock(func() time.Time { return now }))
		svc = build(client, webhookSecret)
	})

	Describe("SubmitReport", func() {
		It("formats the body with the reporter marker", func() {
			var gotBody string
			client.CreateIssueFn = func(_ context.Context, kind domain.ReportType, title, body string) (*tracker.CreatedIssue, error) {
				Expect(kind).To(Equal(domain.ReportBug))
				Expect(title).To(Equal("Export crash"))
				gotBody = body
				return &tracker.CreatedIssue{ExternalID: 12, URL: "u"}, nil
			}
			issue, err := svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "Export crash", Fields: bugBody})
			Expect(err).NotTo(HaveOccurred())
			Expect(issue.ExternalID).To(BeEquivalentTo(12))

			reporter, ok := tracker.ExtractReporter(gotBody)
			Expect(ok).To(BeTrue())
			Expect(reporter).To(Equal("jane"))
		})

		It("accepts five reports per hour and rejects the sixth without calling out", func() {
			for i := 0; i < 5; i++ {
				_, err := svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "t", Fields: bugBody})
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "t", Fields: bugBody})
			expectCode(err, apperrors.CodeRateLimited)
			Expect(client.Calls("CreateIssue")).To(Equal(5))

			_, err = svc.SubmitReport(ctx, alice, service.ReportSubmitInput{Type: "improvement", Title: "t", Fields: bugBody})
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(time.Hour)
			_, err = svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "t", Fields: bugBody})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects when the tracker is not configured", func() {
			unconfigured := build(nil, webhookSecret)
			_, err := unconfigured.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "t", Fields: bugBody})
			expectCode(err, apperrors.CodeUnavailable)
		})

		It("validates type, title and fields before using quota", func() {
			_, err := svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "feature", Title: "t", Fields: bugBody})
			expectCode(err, apperrors.CodeValidation)
			_, err = svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "", Fields: bugBody})
			expectCode(err, apperrors.CodeValidation)
			_, err = svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "t"})
			expectCode(err, apperrors.CodeValidation)

			decision, _ := limiter.Allow(ctx, "jane")
			Expect(decision.Remaining).To(Equal(4))
			Expect(client.Calls("CreateIssue")).To(BeZero())
		})

		It("surfaces tracker failures as upstream errors and keeps the cache", func() {
			_, err := svc.ListReports(ctx)
			Expect(err).NotTo(HaveOccurred())

			client.CreateIssueFn = func(context.Context, domain.ReportType, string, string) (*tracker.CreatedIssue, error) {
				return nil, errors.New("502 bad gateway")
			}
			_, err = svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "t", Fields: bugBody})
			expectCode(err, apperrors.CodeUpstream)

			_, err = svc.ListReports(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Calls("ListIssues")).To(Equal(2))
		})
	})

	Describe("ListReports", func() {
		BeforeEach(func() {
			base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
			client.ListIssuesFn = func(_ context.Context, kind domain.ReportType, _ int) ([]domain.Report, error) {
				if kind == domain.ReportBug {
					return []domain.Report{
						{ExternalID: 1, Type: kind, State: domain.ReportClosed, CreatedAt: base},
						{ExternalID: 3, Type: kind, State: domain.ReportOpen, CreatedAt: base.Add(2 * time.Hour)},
					}, nil
				}
				return []domain.Report{
					{ExternalID: 2, Type: kind, State: domain.ReportOpen, CreatedAt: base.Add(time.Hour)},
					{ExternalID: 4, Type: kind, State: domain.ReportClosed, CreatedAt: base.Add(3 * time.Hour)},
				}, nil
			}
			client.LastNoteFn = func(_ context.Context, id int64) (string, error) {
				return fmt.Sprintf("fixed in release %d %s", id, strings.Repeat("x", 300)), nil
			}
		})

		It("merges, sorts newest first, caps and excerpts resolutions", func() {
			items, err := svc.ListReports(ctx)
			Expect(err).NotTo(HaveOccurred())
			ids := []int64{}
			for _, item := range items {
				ids = append(ids, item.ExternalID)
			}
			Expect(ids).To(Equal([]int64{4, 3, 2}))
			Expect(items[0].Resolution).To(HavePrefix("fixed in release 4"))
			Expect([]rune(items[0].Resolution)).To(HaveLen(200))
			Expect(items[1].Resolution).To(BeEmpty())
		})

		It("serves the second call within the TTL from cache", func() {
			first, err := svc.ListReports(ctx)
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.ListReports(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
			Expect(client.Calls("ListIssues")).To(Equal(2))

			now = now.Add(5 * time.Minute)
			_, err = svc.ListReports(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Calls("ListIssues")).To(Equal(4))
		})

		It("refetches after a report is submitted", func() {
			_, _ = svc.ListReports(ctx)
			_, err := svc.SubmitReport(ctx, jane, service.ReportSubmitInput{Type: "bug", Title: "t", Fields: bugBody})
			Expect(err).NotTo(HaveOccurred())
			_, _ = svc.ListReports(ctx)
			Expect(client.Calls("ListIssues")).To(Equal(4))
		})

		It("refetches after a webhook-observed closure", func() {
			_, _ = svc.ListReports(ctx)
			body := closedIssueEvent(4, "text\n"+tracker.ReporterMarker("bob"))
			outcome, err := svc.HandleWebhook(ctx, body, tracker.Sign([]byte(webhookSecret), body), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(service.WebhookProcessed))
			svc.Wait()

			_, _ = svc.ListReports(ctx)
			Expect(client.Calls("ListIssues")).To(Equal(4))
		})

		It("reports tracker outages as upstream errors", func() {
			client.ListIssuesFn = func(context.Context, domain.ReportType, int) ([]domain.Report, error) {
				return nil, errors.New("timeout")
			}
			_, err := svc.ListReports(ctx)
			expectCode(err, apperrors.CodeUpstream)
		})
	})

	Describe("report notifications", func() {
		BeforeEach(func() {
			client.ListClosedMentioningFn = func(_ context.Context, text string, _ int) ([]domain.Report, error) {
				Expect(text).To(Equal(tracker.ReporterMarker("jane")))
				return []domain.Report{
					{ExternalID: 7, State: domain.ReportClosed, Reporter: "jane"},
					{ExternalID: 8, State: domain.ReportClosed, Reporter: "janet"},
					{ExternalID: 9, State: domain.ReportClosed, Reporter: "jane"},
				}, nil
			}
		})

		It("lists the actor's closed reports with a seen flag", func() {
			items, err := svc.ListNotificationsFor(ctx, jane)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(items[0].Read).To(BeFalse())

			Expect(svc.MarkReportNotificationsRead(ctx, jane, []int64{7})).To(Succeed())
			items, err = svc.ListNotificationsFor(ctx, jane)
			Expect(err).NotTo(HaveOccurred())
			Expect(items[0].ExternalID).To(BeEquivalentTo(7))
			Expect(items[0].Read).To(BeTrue())
			Expect(items[1].Read).To(BeFalse())
		})

		It("rejects empty and invalid id lists", func() {
			expectCode(svc.MarkReportNotificationsRead(ctx, jane, nil), apperrors.CodeValidation)
			expectCode(svc.MarkReportNotificationsRead(ctx, jane, []int64{0}), apperrors.CodeValidation)
		})
	})

	Describe("HandleWebhook", func() {
		sign := func(body []byte) string { return tracker.Sign([]byte(webhookSecret), body) }

		It("pushes exactly one resolution event to the reporter", func() {
			client.LastNoteFn = func(_ context.Context, id int64) (string, error) {
				Expect(id).To(BeEquivalentTo(42))
				return "Fixed by regenerating the sprite sheet", nil
			}
			body := closedIssueEvent(42, "Steps...\n\nsignalé par @bob")
			outcome, err := svc.HandleWebhook(ctx, body, sign(body), "delivery-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(service.WebhookProcessed))
			svc.Wait()

			frames := live.For("bob")
			Expect(frames).To(HaveLen(1))
			push, ok := frames[0].(service.ReportResolvedPush)
			Expect(ok).To(BeTrue())
			Expect(push.Type).To(Equal("report_resolved"))
			Expect(push.Issue).To(BeEquivalentTo(42))
			Expect(push.Resolution).To(Equal("Fixed by regenerating the sprite sheet"))
		})

		It("acknowledges a repeated delivery without pushing again", func() {
			body := closedIssueEvent(42, "signalé par @bob")
			_, err := svc.HandleWebhook(ctx, body, sign(body), "delivery-1")
			Expect(err).NotTo(HaveOccurred())
			outcome, err := svc.HandleWebhook(ctx, body, sign(body), "delivery-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(service.WebhookDuplicate))
			svc.Wait()
			Expect(live.For("bob")).To(HaveLen(1))
		})

		It("ignores events other than issue closure", func() {
			body := []byte(`{"object_kind":"issue","object_attributes":{"iid":1,"action":"reopen","description":"signalé par @bob"}}`)
			outcome, err := svc.HandleWebhook(ctx, body, sign(body), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(service.WebhookIgnored))

			note := []byte(`{"object_kind":"note","object_attributes":{"note":"signalé par @bob"}}`)
			outcome, err = svc.HandleWebhook(ctx, note, sign(note), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(service.WebhookIgnored))
			svc.Wait()
			Expect(live.For("bob")).To(BeEmpty())
		})

		It("ignores closures without a reporter marker", func() {
			body := closedIssueEvent(5, "no marker")
			outcome, err := svc.HandleWebhook(ctx, body, sign(body), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(service.WebhookIgnored))
		})

		It("fails closed on bad signatures before parsing", func() {
			body := closedIssueEvent(42, "signalé par @bob")
			_, err := svc.HandleWebhook(ctx, body, "", "")
			expectCode(err, apperrors.CodeUnauthorized)

			sig := sign(body)
			tampered := append([]byte(nil), body...)
			tampered[len(tampered)-2] = ' '
			_, err = svc.HandleWebhook(ctx, tampered, sig, "")
			expectCode(err, apperrors.CodeUnauthorized)

			_, err = svc.HandleWebhook(ctx, []byte("not json"), "sha256=00", "")
			expectCode(err, apperrors.CodeUnauthorized)
			svc.Wait()
			Expect(live.For("bob")).To(BeEmpty())
		})

		It("rejects everything when no secret is configured", func() {
			open := build(client, "")
			body := closedIssueEvent(42, "signalé par @bob")
			_, err := open.HandleWebhook(ctx, body, sign(body), "")
			expectCode(err, apperrors.CodeUnavailable)
		})

		It("rejects malformed payloads with a valid signature", func() {
			body := []byte("{not json")
			_, err := svc.HandleWebhook(ctx, body, sign(body), "")
			expectCode(err, apperrors.CodeValidation)
		})

		It("lets a delivery rejected as malformed be retried under the same id", func() {
			broken := []byte("{not json")
			_, err := svc.HandleWebhook(ctx, broken, sign(broken), "delivery-7")
			expectCode(err, apperrors.CodeValidation)

			body := closedIssueEvent(7, "signalé par @bob")
			outcome, err := svc.HandleWebhook(ctx, body, sign(body), "delivery-7")
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(service.WebhookProcessed))
			svc.Wait()
			Expect(live.For("bob")).To(HaveLen(1))
		})
	})
})
