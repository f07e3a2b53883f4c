package store_test

import (
	"context"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
)

var _ = Describe("activity store", Ordered, func() {
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
		gormdb.Exec("DELETE FROM activity_log;")
	})

	It("returns the newest entries first", func() {
		for i := 0; i < 3; i++ {
			err := s.Activity().Append(context.TODO(), &model.ActivityEntry{
				Event:   model.ActivityIdle,
				Message: fmt.Sprintf("entry %d", i),
				Level:   model.LevelInfo,
			})
			Expect(err).To(BeNil())
		}

		entries, err := s.Activity().Recent(context.TODO(), 2)
		Expect(err).To(BeNil())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Message).To(Equal("entry 2"))
		Expect(entries[1].Message).To(Equal("entry 1"))
	})

	It("prunes the log to its cap, dropping the oldest entries", func() {
		for i := 0; i < 510; i++ {
			err := s.Activity().Append(context.TODO(), &model.ActivityEntry{
				Event:   model.ActivityIdle,
				Message: fmt.Sprintf("entry %d", i),
				Level:   model.LevelInfo,
			})
			Expect(err).To(BeNil())
		}

		var count int64
		Expect(gormdb.Model(&model.ActivityEntry{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(int64(500)))

		entries, err := s.Activity().Recent(context.TODO(), 1)
		Expect(err).To(BeNil())
		Expect(entries[0].Message).To(Equal("entry 509"))
	})
})
