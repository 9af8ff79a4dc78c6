package bridge

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/logger"
)

var _ = Describe("dispatcher", func() {
	newDispatcher := func(s *endpointState) *dispatcher {
		return &dispatcher{
			config:     Config{Token: "test-token"},
			state:      s,
			queue:      make(chan string, 4),
			httpClient: &http.Client{Timeout: time.Second},
			logger:     logger.Nop(),
		}
	}

	It("re-waits when the endpoint vanishes between readiness and dispatch", func() {
		s := newEndpointState("", logger.Nop())
		s.setRPCURL("http://remote.example/msg/stale")
		Expect(s.waitReady(context.Background())).To(Succeed())

		// The stream drops right after readiness was observed.
		s.invalidate()

		d := newDispatcher(s)
		got := make(chan string, 1)
		go func() {
			defer GinkgoRecover()
			rpcURL, _, err := d.awaitEndpoint(context.Background())
			Expect(err).NotTo(HaveOccurred())
			got <- rpcURL
		}()

		Consistently(got, "50ms").ShouldNot(Receive())

		s.setRPCURL("http://remote.example/msg/fresh")
		Eventually(got).Should(Receive(Equal("http://remote.example/msg/fresh")))
	})

	It("holds a queued message across an invalidation instead of dropping it", func() {
		up := newUpstream()
		defer up.server.Close()

		s := newEndpointState("", logger.Nop())
		s.setRPCURL(up.server.URL + "/msg/stale")
		Expect(s.waitReady(context.Background())).To(Succeed())
		s.invalidate()

		d := newDispatcher(s)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- d.run(ctx) }()

		msg := `{"jsonrpc":"2.0","method":"held","id":1}`
		d.queue <- msg
		Consistently(up.posts, "50ms").ShouldNot(Receive())

		s.setRPCURL(up.server.URL + "/msg/fresh")

		var post recordedPost
		Eventually(up.posts).Should(Receive(&post))
		Expect(post.Path).To(Equal("/msg/fresh"))
		Expect(post.Body).To(Equal(msg))

		close(d.queue)
		Eventually(done).Should(Receive(BeNil()))
	})
})
