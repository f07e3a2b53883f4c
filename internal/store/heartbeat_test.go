package store_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/biovault/document-agent/internal/store"
)

var _ = Describe("heartbeat store", Ordered, func() {
	var (
		s   store.Store
		dir string
	)

	BeforeAll(func() {
		s, _, dir = newTestStore()
	})

	AfterAll(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})

	It("seeds the singleton row during migration", func() {
		heartbeat, err := s.Heartbeat().Get(context.TODO())
		Expect(err).To(BeNil())
		Expect(heartbeat.DocumentsProcessed).To(Equal(int64(0)))
		Expect(heartbeat.FlagsRaised).To(Equal(int64(0)))
	})

	It("accumulates lifetime counters across touches", func() {
		Expect(s.Heartbeat().Touch(context.TODO(), 1, 0)).To(BeNil())
		Expect(s.Heartbeat().Touch(context.TODO(), 1, 3)).To(BeNil())
		Expect(s.Heartbeat().Touch(context.TODO(), 0, 0)).To(BeNil())

		heartbeat, err := s.Heartbeat().Get(context.TODO())
		Expect(err).To(BeNil())
		Expect(heartbeat.DocumentsProcessed).To(Equal(int64(2)))
		Expect(heartbeat.FlagsRaised).To(Equal(int64(3)))
	})

	It("keeps counters but restamps started_at on Start", func() {
		before, err := s.Heartbeat().Get(context.TODO())
		Expect(err).To(BeNil())

		time.Sleep(10 * time.Millisecond)
		Expect(s.Heartbeat().Start(context.TODO())).To(BeNil())

		after, err := s.Heartbeat().Get(context.TODO())
		Expect(err).To(BeNil())
		Expect(after.DocumentsProcessed).To(Equal(before.DocumentsProcessed))
		Expect(after.FlagsRaised).To(Equal(before.FlagsRaised))
		Expect(after.StartedAt.After(before.StartedAt)).To(BeTrue())
	})
})
