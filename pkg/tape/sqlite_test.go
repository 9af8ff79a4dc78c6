package tape_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/tape"
)

var _ = Describe("SQLiteStore", func() {
	var store *tape.SQLiteStore

	BeforeEach(func() {
		var err error
		store, err = tape.NewSQLiteStore(":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("round-trips entries", func() {
		e := &tape.Entry{
			ID:        "entry-1",
			Session:   "run-1",
			Direction: tape.DirectionOutbound,
			Payload:   `{"jsonrpc":"2.0","method":"ping","id":1}`,
			Status:    200,
			Recorded:  time.Now().UTC(),
		}
		Expect(store.Append(context.Background(), e)).To(Succeed())

		entries, err := store.List(context.Background(), "run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].ID).To(Equal("entry-1"))
		Expect(entries[0].Direction).To(Equal(tape.DirectionOutbound))
		Expect(entries[0].Payload).To(Equal(e.Payload))
		Expect(entries[0].Status).To(Equal(200))
	})

	It("filters by session", func() {
		for i, session := range []string{"a", "b", "a"} {
			e := &tape.Entry{
				ID:        string(rune('x' + i)),
				Session:   session,
				Direction: tape.DirectionInbound,
				Payload:   `{}`,
				Recorded:  time.Now().UTC(),
			}
			Expect(store.Append(context.Background(), e)).To(Succeed())
		}

		entries, err := store.List(context.Background(), "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))

		all, err := store.List(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))
	})

	It("preserves insertion order", func() {
		for i := range 5 {
			e := &tape.Entry{
				ID:        string(rune('a' + i)),
				Session:   "run",
				Direction: tape.DirectionInbound,
				Payload:   `{}`,
				Recorded:  time.Now().UTC(),
			}
			Expect(store.Append(context.Background(), e)).To(Succeed())
		}

		entries, err := store.List(context.Background(), "run")
		Expect(err).NotTo(HaveOccurred())
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		Expect(ids).To(Equal([]string{"a", "b", "c", "d", "e"}))
	})
})
