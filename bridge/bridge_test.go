package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"github.com/papercomputeco/relay/pkg/logger"
)

// closeStream makes the upstream handler drop the current SSE connection.
const closeStream = "\x00close"

type recordedPost struct {
	Path        string
	Body        string
	Auth        string
	ContentType string
	Session     string
}

// upstream is a fake MCP remote: an SSE endpoint fed from the events
// channel and a POST sink that records everything it receives.
type upstream struct {
	server *httptest.Server
	events chan string
	posts  chan recordedPost

	mu        sync.Mutex
	sessionID string
}

func newUpstream() *upstream {
	u := &upstream{
		events: make(chan string),
		posts:  make(chan recordedPost, 32),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()

		for {
			select {
			case block := <-u.events:
				if block == closeStream {
					return
				}
				fmt.Fprint(w, block)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("/msg/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if id := u.session(); id != "" {
			w.Header().Set(headerSessionID, id)
		}
		w.WriteHeader(http.StatusAccepted)
		u.posts <- recordedPost{
			Path:        r.URL.Path,
			Body:        string(body),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
			Session:     r.Header.Get(headerSessionID),
		}
	})

	u.server = httptest.NewServer(mux)
	return u
}

func (u *upstream) sseURL() string {
	return u.server.URL + "/sse"
}

func (u *upstream) setSession(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sessionID = id
}

func (u *upstream) session() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sessionID
}

func endpointEvent(path string) string {
	return "event: endpoint\ndata: " + path + "\n\n"
}

func messageEvent(payload string) string {
	return "event: message\ndata: " + payload + "\n\n"
}

var _ = Describe("Bridge", func() {
	var (
		up     *upstream
		inR    *io.PipeReader
		in     *io.PipeWriter
		out    *gbytes.Buffer
		b      *Bridge
		ctx    context.Context
		cancel context.CancelFunc
		runErr chan error
	)

	startBridge := func(mutate func(*Config)) {
		cfg := Config{
			SSEURL:          up.sseURL(),
			Token:           "test-token",
			QueueSize:       8,
			EndpointTimeout: 2 * time.Second,
			BackoffInitial:  10 * time.Millisecond,
			BackoffMax:      50 * time.Millisecond,
		}
		if mutate != nil {
			mutate(&cfg)
		}

		var err error
		b, err = New(cfg, WithLogger(logger.Nop()), WithStreams(inR, out))
		Expect(err).NotTo(HaveOccurred())

		runErr = make(chan error, 1)
		go func() {
			runErr <- b.Run(ctx)
		}()
	}

	waitStopped := func() error {
		var err error
		Eventually(runErr, "3s").Should(Receive(&err))
		runErr = nil
		return err
	}

	BeforeEach(func() {
		up = newUpstream()
		inR, in = io.Pipe()
		out = gbytes.NewBuffer()
		ctx, cancel = context.WithCancel(context.Background())
		runErr = nil
	})

	AfterEach(func() {
		cancel()
		in.Close()
		if runErr != nil {
			Eventually(runErr, "3s").Should(Receive())
		}
		up.server.Close()
	})

	It("rejects incomplete configuration before any network activity", func() {
		var cerr *ConfigurationError

		_, err := New(Config{Token: "t"})
		Expect(errors.As(err, &cerr)).To(BeTrue())

		_, err = New(Config{SSEURL: "https://remote.example/sse"})
		Expect(errors.As(err, &cerr)).To(BeTrue())

		_, err = New(Config{SSEURL: "not a url", Token: "t"})
		Expect(errors.As(err, &cerr)).To(BeTrue())

		_, err = New(Config{SSEURL: "https://remote.example/sse", RPCURL: "/relative", Token: "t"})
		Expect(errors.As(err, &cerr)).To(BeTrue())
	})

	It("posts each local message exactly once to the announced endpoint", func() {
		startBridge(nil)
		up.events <- endpointEvent("/msg/abc123")
		Eventually(b.Phase).Should(Equal(PhaseActive))

		msg := `{"jsonrpc":"2.0","method":"ping","id":1}`
		fmt.Fprintln(in, msg)

		var post recordedPost
		Eventually(up.posts).Should(Receive(&post))
		Expect(post.Path).To(Equal("/msg/abc123"))
		Expect(post.Body).To(Equal(msg))
		Expect(post.Auth).To(Equal("Bearer test-token"))
		Expect(post.ContentType).To(Equal("application/json"))

		Consistently(up.posts, "100ms").ShouldNot(Receive())
	})

	It("holds outbound messages until an endpoint is announced, then flushes in order", func() {
		startBridge(nil)

		for i := 1; i <= 3; i++ {
			fmt.Fprintf(in, `{"jsonrpc":"2.0","method":"m%d","id":%d}`+"\n", i, i)
		}
		Consistently(up.posts, "100ms").ShouldNot(Receive())

		up.events <- endpointEvent("/msg/late")

		for i := 1; i <= 3; i++ {
			var post recordedPost
			Eventually(up.posts).Should(Receive(&post))
			Expect(post.Path).To(Equal("/msg/late"))
			Expect(post.Body).To(ContainSubstring(fmt.Sprintf(`"m%d"`, i)))
		}
	})

	It("accepts endpoint announcements in JSON form, latest winning", func() {
		startBridge(nil)

		up.events <- endpointEvent(`{"endpoint":"/msg/object-form"}`)
		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"a","id":1}`)

		var first recordedPost
		Eventually(up.posts).Should(Receive(&first))
		Expect(first.Path).To(Equal("/msg/object-form"))

		up.events <- endpointEvent(`"/msg/string-form"`)
		Eventually(func() string {
			rpcURL, _, _ := b.state.snapshot()
			return rpcURL
		}).Should(HaveSuffix("/msg/string-form"))

		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"b","id":2}`)
		var second recordedPost
		Eventually(up.posts).Should(Receive(&second))
		Expect(second.Path).To(Equal("/msg/string-form"))
	})

	It("echoes the server-issued session id on subsequent requests", func() {
		up.setSession("sess-42")
		startBridge(nil)
		up.events <- endpointEvent("/msg/s")

		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"one","id":1}`)
		var first recordedPost
		Eventually(up.posts).Should(Receive(&first))
		Expect(first.Session).To(BeEmpty())

		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"two","id":2}`)
		var second recordedPost
		Eventually(up.posts).Should(Receive(&second))
		Expect(second.Session).To(Equal("sess-42"))
	})

	It("writes server payloads to local output in arrival order", func() {
		startBridge(nil)
		up.events <- endpointEvent("/msg/x")

		up.events <- messageEvent(`{"jsonrpc":"2.0","id":1,"result":{"a":1}}`)
		up.events <- "data: {\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{}}\n\n"
		up.events <- messageEvent(`{"jsonrpc":"2.0","method":"notify"}`)

		Eventually(out).Should(gbytes.Say(`\{"jsonrpc":"2\.0","id":1,"result":\{"a":1\}\}\n`))
		Eventually(out).Should(gbytes.Say(`\{"jsonrpc":"2\.0","id":2,"result":\{\}\}\n`))
		Eventually(out).Should(gbytes.Say(`\{"jsonrpc":"2\.0","method":"notify"\}\n`))
	})

	It("drops keep-alives and non-JSON payloads", func() {
		startBridge(nil)
		up.events <- endpointEvent("/msg/x")

		up.events <- "event: ping\ndata: 2026-08-23T00:00:00Z\n\n"
		up.events <- messageEvent("plainly not json")
		up.events <- messageEvent(`{"jsonrpc":"2.0","id":9,"result":{}}`)

		Eventually(out).Should(gbytes.Say(`"id":9`))
		Expect(string(out.Contents())).NotTo(ContainSubstring("plainly not json"))
		Expect(string(out.Contents())).NotTo(ContainSubstring("2026-08-23"))
	})

	It("reconnects after a drop and delivers buffered messages to the fresh endpoint", func() {
		startBridge(nil)
		up.events <- endpointEvent("/msg/first")

		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"before","id":1}`)
		var before recordedPost
		Eventually(up.posts).Should(Receive(&before))
		Expect(before.Path).To(Equal("/msg/first"))

		up.events <- closeStream
		Eventually(b.Phase).Should(Equal(PhaseReconnecting))

		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"during1","id":2}`)
		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"during2","id":3}`)
		Consistently(up.posts, "50ms").ShouldNot(Receive())

		up.events <- endpointEvent("/msg/second")

		var p2, p3 recordedPost
		Eventually(up.posts).Should(Receive(&p2))
		Eventually(up.posts).Should(Receive(&p3))
		Expect(p2.Path).To(Equal("/msg/second"))
		Expect(p2.Body).To(ContainSubstring("during1"))
		Expect(p3.Path).To(Equal("/msg/second"))
		Expect(p3.Body).To(ContainSubstring("during2"))
	})

	It("dispatches immediately when the rpc url is pinned", func() {
		startBridge(func(c *Config) {
			c.RPCURL = up.server.URL + "/msg/pinned"
		})

		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"fast","id":1}`)

		var post recordedPost
		Eventually(up.posts).Should(Receive(&post))
		Expect(post.Path).To(Equal("/msg/pinned"))
	})

	It("fails with a protocol error when no endpoint event arrives in time", func() {
		startBridge(func(c *Config) {
			c.EndpointTimeout = 100 * time.Millisecond
		})

		err := waitStopped()
		var perr *ProtocolError
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(b.Phase()).To(Equal(PhaseShuttingDown))
	})

	It("shuts down cleanly when local input ends", func() {
		startBridge(nil)
		up.events <- endpointEvent("/msg/x")

		fmt.Fprintln(in, `{"jsonrpc":"2.0","method":"last","id":1}`)
		Eventually(up.posts).Should(Receive())

		Expect(in.Close()).To(Succeed())
		Expect(waitStopped()).To(Succeed())
		Expect(b.Phase()).To(Equal(PhaseShuttingDown))
	})

	It("stays in starting while the first subscribe keeps failing", func() {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusInternalServerError)
		}))
		defer failing.Close()

		held, heldW := io.Pipe()
		defer heldW.Close()

		b2, err := New(Config{
			SSEURL:          failing.URL,
			Token:           "t",
			BackoffInitial:  5 * time.Millisecond,
			BackoffMax:      10 * time.Millisecond,
			EndpointTimeout: 5 * time.Second,
		}, WithLogger(logger.Nop()), WithStreams(held, io.Discard))
		Expect(err).NotTo(HaveOccurred())

		cctx, ccancel := context.WithCancel(context.Background())
		defer ccancel()

		done := make(chan error, 1)
		go func() { done <- b2.Run(cctx) }()

		// Several backoff rounds pass without ever having connected.
		Consistently(b2.Phase, "100ms").Should(Equal(PhaseStarting))

		ccancel()
		Eventually(done).Should(Receive())
	})

	It("gives up with a transport error once the retry budget is spent", func() {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusInternalServerError)
		}))
		defer failing.Close()

		held, heldW := io.Pipe()
		defer heldW.Close()

		b2, err := New(Config{
			SSEURL:          failing.URL,
			Token:           "t",
			BackoffInitial:  5 * time.Millisecond,
			BackoffMax:      10 * time.Millisecond,
			MaxRetries:      2,
			EndpointTimeout: 5 * time.Second,
		}, WithLogger(logger.Nop()), WithStreams(held, io.Discard))
		Expect(err).NotTo(HaveOccurred())

		err = b2.Run(context.Background())
		var terr *TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
	})
})
