package service_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/repository"
	"github.com/spec-kit/picto-request-service/internal/service"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

var _ = Describe("NotificationService", func() {
	var (
		ctx   context.Context
		repo  *memNotificationRepo
		live  *recordingLive
		svc   *service.NotificationService
		first *domain.Notification
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &memNotificationRepo{clock: newClock()}
		live = &recordingLive{}
		svc = service.NewNotificationService(service.NotificationDependencies{NotificationRepo: repo, Live: live})

		first = &domain.Notification{RecipientLogin: "jane", Type: domain.NotificationRequestDelivered, Title: "t1", Message: "m1"}
		Expect(svc.Create(ctx, first)).To(Succeed())
		Expect(svc.Create(ctx, &domain.Notification{RecipientLogin: "jane", Type: domain.NotificationRequestComment, Title: "t2"})).To(Succeed())
		Expect(svc.Create(ctx, &domain.Notification{RecipientLogin: "bob", Type: domain.NotificationRequestComment, Title: "t3"})).To(Succeed())
	})

	It("pushes each created notification to the recipient", func() {
		frames := live.For("jane")
		Expect(frames).To(HaveLen(2))
		push, ok := frames[0].(service.NotificationPush)
		Expect(ok).To(BeTrue())
		Expect(push.Type).To(Equal("notification"))
		Expect(push.Notification.ID).To(Equal(first.ID))
	})

	It("requires a recipient", func() {
		expectCode(svc.Create(ctx, &domain.Notification{Title: "orphan"}), apperrors.CodeValidation)
	})

	It("lists newest first with the unread count", func() {
		list, err := svc.List(ctx, "jane", false, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Items).To(HaveLen(2))
		Expect(list.Items[0].Title).To(Equal("t2"))
		Expect(list.Unread).To(Equal(2))
	})

	It("marks read idempotently", func() {
		Expect(svc.MarkRead(ctx, "jane", first.ID)).To(Succeed())
		Expect(svc.MarkRead(ctx, "jane", first.ID)).To(Succeed())

		unread, err := svc.ListUnread(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		Expect(unread).To(HaveLen(1))

		all, err := svc.ListAll(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})

	It("returns every notification past the default page size", func() {
		for i := 0; i < repository.DefaultNotificationPage+10; i++ {
			Expect(svc.Create(ctx, &domain.Notification{RecipientLogin: "jane", Type: domain.NotificationRequestComment, Title: fmt.Sprintf("bulk-%d", i)})).To(Succeed())
		}

		all, err := svc.ListAll(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(repository.DefaultNotificationPage + 12))
		Expect(all[0].Title).To(Equal(fmt.Sprintf("bulk-%d", repository.DefaultNotificationPage+9)))

		unread, err := svc.ListUnread(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		Expect(unread).To(HaveLen(repository.DefaultNotificationPage + 12))

		list, err := svc.List(ctx, "jane", false, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Items).To(HaveLen(repository.DefaultNotificationPage))
	})

	It("does not let a user read another user's notification", func() {
		expectCode(svc.MarkRead(ctx, "bob", first.ID), apperrors.CodeNotFound)
	})

	It("validates ids", func() {
		expectCode(svc.MarkRead(ctx, "jane", "nope"), apperrors.CodeValidation)
		_, err := svc.MarkManyRead(ctx, "jane", nil)
		expectCode(err, apperrors.CodeValidation)
		_, err = svc.MarkManyRead(ctx, "jane", []string{first.ID, "nope"})
		expectCode(err, apperrors.CodeValidation)
	})

	It("marks many read and counts only changes", func() {
		all, _ := svc.ListAll(ctx, "jane")
		ids := []string{all[0].ID, all[1].ID}

		updated, err := svc.MarkManyRead(ctx, "jane", ids)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated).To(BeEquivalentTo(2))

		updated, err = svc.MarkManyRead(ctx, "jane", ids)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated).To(BeZero())

		list, _ := svc.List(ctx, "jane", true, 0)
		Expect(list.Items).To(BeEmpty())
		Expect(list.Unread).To(BeZero())
	})
})
