package service_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/events"
	"github.com/spec-kit/picto-request-service/internal/service"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

type workflowEnv struct {
	requests      *memRequestRepo
	comments      *memCommentRepo
	history       *memHistoryRepo
	notifications *memNotificationRepo
	live          *recordingLive
	svc           *service.RequestService
	notifier      *service.NotificationService
}

func newWorkflowEnv(handlers ...string) *workflowEnv {
	c := newClock()
	env := &workflowEnv{
		requests:      newMemRequestRepo(c),
		comments:      &memCommentRepo{clock: c},
		history:       &memHistoryRepo{clock: c},
		notifications: &memNotificationRepo{clock: c},
		live:          &recordingLive{},
	}
	dispatcher := events.NewInMemoryDispatcher()
	env.notifier = service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: env.notifications,
		Live:             env.live,
		Dispatcher:       dispatcher,
		BaseURL:          "https://picto.example/",
	})
	env.notifier.RegisterHandlers()
	env.svc = service.NewRequestService(service.RequestDependencies{
		RequestRepo: env.requests,
		CommentRepo: env.comments,
		HistoryRepo: env.history,
		Dispatcher:  dispatcher,
		Handlers:    handlers,
	})
	return env
}

var (
	jane  = domain.Actor{Login: "jane", DisplayName: "Jane Doe"}
	alice = domain.Actor{Login: "alice", DisplayName: "Alice", Privileged: true}
	carl  = domain.Actor{Login: "carl", DisplayName: "Carl", Privileged: true}
	eve   = domain.Actor{Login: "eve"}
)

var _ = Describe("RequestService", func() {
	var (
		ctx context.Context
		env *workflowEnv
	)

	BeforeEach(func() {
		ctx = context.Background()
		env = newWorkflowEnv("alice", "carl", "jane")
	})

	create := func() *domain.Request {
		GinkgoHelper()
		req, err := env.svc.CreateRequest(ctx, jane, service.RequestCreateInput{
			Title:       "Icon for drones",
			Description: "A small quadcopter seen from above",
		})
		Expect(err).NotTo(HaveOccurred())
		return req
	}

	Describe("CreateRequest", func() {
		It("stores a new normal-urgency request with a created entry and no notification", func() {
			req := create()
			Expect(req.Status).To(Equal(domain.StatusNew))
			Expect(req.Urgency).To(Equal(domain.UrgencyNormal))
			Expect(req.AssigneeLogin).To(BeNil())

			history, err := env.svc.ListHistory(ctx, jane, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(1))
			Expect(history[0].Action).To(Equal(domain.HistoryCreated))
			Expect(env.notifications.rows).To(BeEmpty())
		})

		DescribeTable("rejects invalid input before persisting",
			func(input service.RequestCreateInput) {
				_, err := env.svc.CreateRequest(ctx, jane, input)
				expectCode(err, apperrors.CodeValidation)
				Expect(env.requests.rows).To(BeEmpty())
				Expect(env.history.rows).To(BeEmpty())
			},
			Entry("blank title", service.RequestCreateInput{Title: "  ", Description: "d"}),
			Entry("blank description", service.RequestCreateInput{Title: "t", Description: ""}),
			Entry("long title", service.RequestCreateInput{Title: strings.Repeat("t", domain.MaxTitleLength+1), Description: "d"}),
			Entry("long description", service.RequestCreateInput{Title: "t", Description: strings.Repeat("d", domain.MaxDescriptionLength+1)}),
			Entry("unknown urgency", service.RequestCreateInput{Title: "t", Description: "d", Urgency: "asap"}),
		)
	})

	Describe("Assign", func() {
		It("takes the request, moves it in progress and notifies the requester", func() {
			req := create()
			assigned, err := env.svc.Assign(ctx, alice, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(assigned.Status).To(Equal(domain.StatusInProgress))
			Expect(*assigned.AssigneeLogin).To(Equal("alice"))

			notes := env.notifications.For("jane")
			Expect(notes).To(HaveLen(1))
			Expect(notes[0].Type).To(Equal(domain.NotificationRequestAssigned))
			Expect(notes[0].Link).To(Equal("https://picto.example/requests/" + req.ID))
			Expect(env.live.For("jane")).To(HaveLen(1))
		})

		It("refuses a request that is already assigned", func() {
			req := create()
			_, err := env.svc.Assign(ctx, alice, req.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = env.svc.Assign(ctx, carl, req.ID)
			expectCode(err, apperrors.CodeConflict)
		})

		It("refuses a terminal request", func() {
			req := create()
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "refused", RejectionReason: "duplicate"})
			Expect(err).NotTo(HaveOccurred())

			_, err = env.svc.Assign(ctx, carl, req.ID)
			expectGuard(err, domain.GuardTerminal)
		})

		It("reports unknown requests as not found", func() {
			_, err := env.svc.Assign(ctx, alice, "6f1c1f7e-4a43-4b55-9d0e-000000000000")
			expectCode(err, apperrors.CodeNotFound)
		})

		It("is reserved to handlers", func() {
			req := create()
			_, err := env.svc.Assign(ctx, eve, req.ID)
			expectCode(err, apperrors.CodeForbidden)
		})
	})

	Describe("ChangeStatus", func() {
		var req *domain.Request

		BeforeEach(func() {
			req = create()
			_, err := env.svc.Assign(ctx, alice, req.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("requires a comment to ask for precisions", func() {
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "precisions_needed"})
			expectGuard(err, domain.GuardCommentRequired)

			stored, _ := env.requests.GetByID(ctx, req.ID)
			Expect(stored.Status).To(Equal(domain.StatusInProgress))
		})

		It("posts the comment and records one history entry when precisions are asked", func() {
			historyBefore := len(env.history.rows)
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{
				Status:  "precisions_needed",
				Comment: "Which rotor count?",
			})
			Expect(err).NotTo(HaveOccurred())

			comments, err := env.svc.ListComments(ctx, jane, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(comments).To(HaveLen(1))
			Expect(comments[0].AuthorLogin).To(Equal("alice"))
			Expect(comments[0].Content).To(Equal("Which rotor count?"))
			Expect(env.history.rows).To(HaveLen(historyBefore + 1))

			last := env.history.rows[len(env.history.rows)-1]
			Expect(last.Action).To(Equal(domain.HistoryStatusChanged))
			Expect(*last.FromStatus).To(Equal(domain.StatusInProgress))
			Expect(*last.ToStatus).To(Equal(domain.StatusPrecisionsNeeded))
			Expect(*last.Detail).To(Equal("Which rotor count?"))

			notes := env.notifications.For("jane")
			Expect(notes[len(notes)-1].Type).To(Equal(domain.NotificationRequestPrecisionsNeeded))
		})

		It("requires a delivered asset to deliver", func() {
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "delivered"})
			expectGuard(err, domain.GuardAssetRequired)
		})

		It("requires a reason to refuse and then locks the request", func() {
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "refused"})
			expectGuard(err, domain.GuardReasonRequired)

			refused, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "refused", RejectionReason: "Out of scope"})
			Expect(err).NotTo(HaveOccurred())
			Expect(refused.Status).To(Equal(domain.StatusRefused))
			Expect(*refused.RejectionReason).To(Equal("Out of scope"))

			for _, status := range domain.Statuses {
				_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{
					Status:           string(status),
					Comment:          "c",
					DeliveredAssetID: "a",
					RejectionReason:  "r",
				})
				expectGuard(err, domain.GuardTerminal)
			}
		})

		It("posts both comment and reason on refusal and describes it by the reason", func() {
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{
				Status:          "refused",
				Comment:         "Sorry",
				RejectionReason: "Out of scope",
			})
			Expect(err).NotTo(HaveOccurred())

			comments, err := env.svc.ListComments(ctx, jane, req.ID)
			Expect(err).NotTo(HaveOccurred())
			contents := make([]string, len(comments))
			for i, c := range comments {
				contents[i] = c.Content
			}
			Expect(contents).To(Equal([]string{"Sorry", "Out of scope"}))

			last := env.history.rows[len(env.history.rows)-1]
			Expect(last.Action).To(Equal(domain.HistoryStatusChanged))
			Expect(*last.Detail).To(Equal("Out of scope"))

			notes := env.notifications.For("jane")
			declined := notes[len(notes)-1]
			Expect(declined.Type).To(Equal(domain.NotificationRequestRefused))
			Expect(declined.Message).To(ContainSubstring("Out of scope"))
		})

		It("rejects edges outside the table", func() {
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "new"})
			expectGuard(err, domain.GuardTransitionAllowed)
		})

		It("rejects unknown statuses as validation errors", func() {
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "archived"})
			expectCode(err, apperrors.CodeValidation)
		})

		It("reports a concurrent modification as a conflict", func() {
			env.requests.updateHook = func(id string) {
				env.requests.updateHook = nil
				env.requests.bump(id)
			}
			historyBefore := len(env.history.rows)
			_, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "delivered", DeliveredAssetID: "picto-1"})
			expectCode(err, apperrors.CodeConflict)
			Expect(env.history.rows).To(HaveLen(historyBefore))
		})

		It("assigns the actor when a new request is moved in progress directly", func() {
			fresh := create()
			moved, err := env.svc.ChangeStatus(ctx, carl, fresh.ID, service.StatusChangeInput{Status: "in_progress"})
			Expect(err).NotTo(HaveOccurred())
			Expect(*moved.AssigneeLogin).To(Equal("carl"))
		})
	})

	Describe("AddComment", func() {
		It("notifies every handler except the author while unassigned", func() {
			req := create()
			_, err := env.svc.AddComment(ctx, jane, req.ID, "Any news?")
			Expect(err).NotTo(HaveOccurred())

			Expect(env.notifications.For("alice")).To(HaveLen(1))
			Expect(env.notifications.For("carl")).To(HaveLen(1))
			Expect(env.notifications.For("jane")).To(BeEmpty())

			stored, _ := env.requests.GetByID(ctx, req.ID)
			Expect(stored.AssigneeLogin).To(BeNil())
		})

		It("notifies only the counterpart once assigned", func() {
			req := create()
			_, err := env.svc.Assign(ctx, alice, req.ID)
			Expect(err).NotTo(HaveOccurred())
			before := len(env.notifications.For("jane"))

			_, err = env.svc.AddComment(ctx, jane, req.ID, "Thanks")
			Expect(err).NotTo(HaveOccurred())
			Expect(env.notifications.For("alice")).To(HaveLen(1))
			Expect(env.notifications.For("carl")).To(BeEmpty())

			_, err = env.svc.AddComment(ctx, alice, req.ID, "Working on it")
			Expect(err).NotTo(HaveOccurred())
			janeNotes := env.notifications.For("jane")
			Expect(janeNotes).To(HaveLen(before + 1))
			Expect(janeNotes[len(janeNotes)-1].Type).To(Equal(domain.NotificationRequestComment))
		})

		It("rejects empty and oversized content", func() {
			req := create()
			_, err := env.svc.AddComment(ctx, jane, req.ID, "   ")
			expectCode(err, apperrors.CodeValidation)
			_, err = env.svc.AddComment(ctx, jane, req.ID, strings.Repeat("x", domain.MaxCommentLength+1))
			expectCode(err, apperrors.CodeValidation)
			Expect(env.comments.rows).To(BeEmpty())
		})

		It("hides requests from unrelated users", func() {
			req := create()
			_, err := env.svc.AddComment(ctx, eve, req.ID, "hello")
			expectCode(err, apperrors.CodeForbidden)
		})
	})

	Describe("listing", func() {
		It("scopes mine to the requester and all to handlers", func() {
			create()
			mine, err := env.svc.ListMine(ctx, jane, service.RequestListFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveLen(1))

			others, err := env.svc.ListMine(ctx, eve, service.RequestListFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(others).To(BeEmpty())

			_, err = env.svc.ListAll(ctx, eve, service.RequestListFilter{})
			expectCode(err, apperrors.CodeForbidden)

			all, err := env.svc.ListAll(ctx, alice, service.RequestListFilter{Statuses: []domain.Status{domain.StatusNew}})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})
	})

	Describe("history ledger", func() {
		It("only grows and keeps appended entries intact", func() {
			req := create()
			first, _ := env.svc.ListHistory(ctx, jane, req.ID)
			snapshot := first[0]

			_, _ = env.svc.Assign(ctx, alice, req.ID)
			_, _ = env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "delivered"})
			_, _ = env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{Status: "precisions_needed", Comment: "?"})

			after, err := env.svc.ListHistory(ctx, jane, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(after)).To(BeNumerically(">=", len(first)))
			Expect(after[0]).To(Equal(snapshot))
			for i := 1; i < len(after); i++ {
				Expect(after[i].CreatedAt.After(after[i-1].CreatedAt)).To(BeTrue())
			}
		})
	})

	It("delivers a request end to end", func() {
		req := create()
		_, err := env.svc.Assign(ctx, alice, req.ID)
		Expect(err).NotTo(HaveOccurred())
		final, err := env.svc.ChangeStatus(ctx, alice, req.ID, service.StatusChangeInput{
			Status:           "delivered",
			DeliveredAssetID: "picto-42",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(domain.StatusDelivered))
		Expect(*final.AssigneeLogin).To(Equal("alice"))
		Expect(*final.DeliveredAssetID).To(Equal("picto-42"))

		history, err := env.svc.ListHistory(ctx, jane, req.ID)
		Expect(err).NotTo(HaveOccurred())
		actions := make([]domain.HistoryAction, len(history))
		for i, h := range history {
			actions[i] = h.Action
		}
		Expect(actions).To(Equal([]domain.HistoryAction{
			domain.HistoryCreated,
			domain.HistoryAssigned,
			domain.HistoryStatusChanged,
		}))

		unread, err := env.notifier.ListUnread(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		var delivered []domain.Notification
		for _, n := range unread {
			if n.Type == domain.NotificationRequestDelivered {
				delivered = append(delivered, n)
			}
		}
		Expect(delivered).To(HaveLen(1))
		Expect(delivered[0].Message).To(ContainSubstring("delivered"))
	})
})
