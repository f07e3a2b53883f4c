package store_test

import (
	"context"
	"os"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
)

var _ = Describe("safety flag store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		dir    string
	)

	BeforeAll(func() {
		s, gormdb, dir = newTestStore()
	})

	AfterAll(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM safety_flags;")
	})

	newFlag := func(severity string) *model.SafetyFlag {
		flag, err := s.SafetyFlag().Create(context.TODO(), &model.SafetyFlag{
			DocumentID: uuid.New(),
			FlagType:   model.FlagDoseVariance,
			Severity:   severity,
			Details:    "dose jumped 40% from baseline",
		})
		Expect(err).To(BeNil())
		return flag
	}

	Context("resolve", func() {
		It("marks a flag resolved with a timestamp", func() {
			flag := newFlag(model.SeverityHigh)

			Expect(s.SafetyFlag().Resolve(context.TODO(), flag.ID)).To(BeNil())

			flags, err := s.SafetyFlag().ByDocument(context.TODO(), flag.DocumentID)
			Expect(err).To(BeNil())
			Expect(flags).To(HaveLen(1))
			Expect(flags[0].Resolved).To(BeTrue())
			Expect(flags[0].ResolvedAt).ToNot(BeNil())
		})

		It("is a no-op on an already resolved flag", func() {
			flag := newFlag(model.SeverityHigh)
			Expect(s.SafetyFlag().Resolve(context.TODO(), flag.ID)).To(BeNil())

			flags, err := s.SafetyFlag().ByDocument(context.TODO(), flag.DocumentID)
			Expect(err).To(BeNil())
			firstResolvedAt := flags[0].ResolvedAt

			Expect(s.SafetyFlag().Resolve(context.TODO(), flag.ID)).To(BeNil())

			flags, err = s.SafetyFlag().ByDocument(context.TODO(), flag.DocumentID)
			Expect(err).To(BeNil())
			Expect(flags[0].ResolvedAt).To(Equal(firstResolvedAt))
		})

		It("returns ErrRecordNotFound for an unknown flag", func() {
			err := s.SafetyFlag().Resolve(context.TODO(), 424242)
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})
	})

	Context("listing", func() {
		It("lists only unresolved flags", func() {
			resolved := newFlag(model.SeverityHigh)
			open := newFlag(model.SeverityMedium)
			Expect(s.SafetyFlag().Resolve(context.TODO(), resolved.ID)).To(BeNil())

			flags, err := s.SafetyFlag().Unresolved(context.TODO())
			Expect(err).To(BeNil())
			Expect(flags).To(HaveLen(1))
			Expect(flags[0].ID).To(Equal(open.ID))
		})

		It("caps the full history at the requested limit", func() {
			for i := 0; i < 5; i++ {
				newFlag(model.SeverityLow)
			}
			flags, err := s.SafetyFlag().All(context.TODO(), 3)
			Expect(err).To(BeNil())
			Expect(flags).To(HaveLen(3))
		})
	})
})
