package ratelimit_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/picto-request-service/internal/ratelimit"
)

var _ = Describe("RedisFixedWindow", func() {
	var (
		ctx     context.Context
		server  *miniredis.Miniredis
		limiter *ratelimit.RedisFixedWindow
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		server, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(server.Close)

		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		DeferCleanup(client.Close)
		limiter = ratelimit.NewRedisFixedWindow(client, "picto:ratelimit:", 5, time.Hour)
	})

	It("accepts five submissions and rejects the sixth", func() {
		for i := 0; i < 5; i++ {
			decision, err := limiter.Allow(ctx, "jane")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue(), "submission %d", i+1)
			Expect(decision.Remaining).To(Equal(4 - i))
		}

		decision, err := limiter.Allow(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Allowed).To(BeFalse())
		Expect(decision.Remaining).To(BeZero())
		Expect(decision.ResetAt).To(BeTemporally("~", time.Now().Add(time.Hour), time.Minute))
	})

	It("keeps quotas per actor", func() {
		for i := 0; i < 5; i++ {
			_, err := limiter.Allow(ctx, "jane")
			Expect(err).NotTo(HaveOccurred())
		}
		decision, err := limiter.Allow(ctx, "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Allowed).To(BeTrue())
	})

	It("opens a new window once the old one expires", func() {
		for i := 0; i < 6; i++ {
			_, err := limiter.Allow(ctx, "jane")
			Expect(err).NotTo(HaveOccurred())
		}

		server.FastForward(time.Hour + time.Second)

		decision, err := limiter.Allow(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Allowed).To(BeTrue())
		Expect(decision.Remaining).To(Equal(4))
	})

	It("sets the window expiry on the first submission", func() {
		_, err := limiter.Allow(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		Expect(server.TTL("picto:ratelimit:jane")).To(Equal(time.Hour))
	})

	It("restores a missing expiry instead of counting forever", func() {
		Expect(server.Set("picto:ratelimit:jane", "3")).To(Succeed())
		Expect(server.TTL("picto:ratelimit:jane")).To(BeZero())

		decision, err := limiter.Allow(ctx, "jane")
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Allowed).To(BeTrue())
		Expect(decision.Remaining).To(Equal(1))
		Expect(server.TTL("picto:ratelimit:jane")).To(Equal(time.Hour))
	})
})
