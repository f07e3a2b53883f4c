package service_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/service"
	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
)

type fakeTick struct {
	running   bool
	triggered int
}

func (f *fakeTick) TriggerNow() bool {
	if !f.running {
		return false
	}
	f.triggered++
	return true
}

var _ = Describe("health service", Ordered, func() {
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
		gormdb.Exec("DELETE FROM documents;")
		gormdb.Exec("DELETE FROM activity_log;")
	})

	It("reports running while the heartbeat is fresh", func() {
		Expect(s.Heartbeat().Touch(context.TODO(), 0, 0)).To(BeNil())

		srv := service.NewHealthService(s, 90*time.Second)
		health, err := srv.Health(context.TODO())
		Expect(err).To(BeNil())
		Expect(health.Status).To(Equal("running"))
		Expect(health.Service).To(Equal("biovault-agent"))
		Expect(health.Heartbeat).ToNot(BeNil())
	})

	It("reports stalled once the heartbeat goes quiet", func() {
		Expect(s.Heartbeat().Touch(context.TODO(), 0, 0)).To(BeNil())

		// Threshold shorter than any realistic delay since the touch above.
		srv := service.NewHealthService(s, time.Nanosecond)
		health, err := srv.Health(context.TODO())
		Expect(err).To(BeNil())
		Expect(health.Status).To(Equal("stalled"))
	})
})

var _ = Describe("agent service", Ordered, func() {
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
		gormdb.Exec("DELETE FROM documents;")
		gormdb.Exec("DELETE FROM activity_log;")
	})

	Context("process now", func() {
		It("triggers a tick when the loop runs", func() {
			trigger := &fakeTick{running: true}
			srv := service.NewAgentService(s, trigger)

			result := srv.ProcessNow()
			Expect(result.Status).To(Equal("ok"))
			Expect(trigger.triggered).To(Equal(1))
		})

		It("reports unavailable when the loop is down", func() {
			srv := service.NewAgentService(s, &fakeTick{running: false})

			result := srv.ProcessNow()
			Expect(result.Status).To(Equal("unavailable"))
		})
	})

	Context("activity", func() {
		It("returns entries newest first with queue context", func() {
			Expect(s.Activity().Append(context.TODO(), &model.ActivityEntry{
				Event: model.ActivityStartup, Message: "Agent loop started", Level: model.LevelInfo,
			})).To(BeNil())
			Expect(s.Activity().Append(context.TODO(), &model.ActivityEntry{
				Event: model.ActivityIdle, Message: "Queue empty", Level: model.LevelInfo,
			})).To(BeNil())

			srv := service.NewAgentService(s, &fakeTick{})
			activity, err := srv.Activity(context.TODO(), 0)
			Expect(err).To(BeNil())
			Expect(activity.Entries).To(HaveLen(2))
			Expect(activity.Entries[0].Event).To(Equal(model.ActivityIdle))
			Expect(activity.HasActive).To(BeFalse())
		})

		It("flags active work while a document is processing", func() {
			doc, err := s.Document().Create(context.TODO(), &model.Document{
				Filename: "chart.png", FilePath: "/x/chart.png",
			})
			Expect(err).To(BeNil())
			Expect(doc).ToNot(BeNil())
			_, err = s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(BeNil())

			srv := service.NewAgentService(s, &fakeTick{})
			activity, err := srv.Activity(context.TODO(), 10)
			Expect(err).To(BeNil())
			Expect(activity.HasActive).To(BeTrue())
		})
	})
})
