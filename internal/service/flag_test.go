package service_test

import (
	"context"
	"os"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/service"
	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
)

var _ = Describe("flag service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		dir    string
		srv    *service.FlagService
	)

	BeforeAll(func() {
		s, gormdb, dir = newTestStore()
		srv = service.NewFlagService(s)
	})

	AfterAll(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM safety_flags;")
	})

	newFlag := func() *model.SafetyFlag {
		flag, err := s.SafetyFlag().Create(context.TODO(), &model.SafetyFlag{
			DocumentID: uuid.New(),
			FlagType:   model.FlagPiiLeak,
			Severity:   model.SeverityHigh,
			Details:    "name leaked into bundle",
		})
		Expect(err).To(BeNil())
		return flag
	}

	It("lists unresolved flags as alerts", func() {
		newFlag()
		resolved := newFlag()
		Expect(s.SafetyFlag().Resolve(context.TODO(), resolved.ID)).To(BeNil())

		alerts, err := srv.Unresolved(context.TODO())
		Expect(err).To(BeNil())
		Expect(alerts.Status).To(Equal("ok"))
		Expect(alerts.Count).To(Equal(1))
		Expect(alerts.Alerts[0].FlagType).To(Equal(model.FlagPiiLeak))
	})

	It("resolves a flag and is idempotent", func() {
		flag := newFlag()

		result, err := srv.Resolve(context.TODO(), flag.ID)
		Expect(err).To(BeNil())
		Expect(result.Status).To(Equal("resolved"))
		Expect(result.FlagID).To(Equal(flag.ID))

		_, err = srv.Resolve(context.TODO(), flag.ID)
		Expect(err).To(BeNil())
	})

	It("returns ErrResourceNotFound for an unknown flag", func() {
		_, err := srv.Resolve(context.TODO(), 424242)
		Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
	})
})
