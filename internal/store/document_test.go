package store_test

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
)

var _ = Describe("document store", Ordered, func() {
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
	})

	newDoc := func(filename string, uploadedAt time.Time) *model.Document {
		doc, err := s.Document().Create(context.TODO(), &model.Document{
			Filename:    filename,
			ContentType: "image/png",
			FilePath:    "/tmp/" + filename,
			UploadedAt:  uploadedAt,
		})
		Expect(err).To(BeNil())
		return doc
	}

	Context("claim", func() {
		It("claims the oldest pending document first", func() {
			base := time.Now().UTC().Add(-time.Hour)
			oldest := newDoc("chart-1.png", base)
			newDoc("chart-2.png", base.Add(time.Minute))
			newDoc("chart-3.png", base.Add(2*time.Minute))

			claimed, err := s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(BeNil())
			Expect(claimed.ID).To(Equal(oldest.ID))
			Expect(claimed.Status).To(Equal(model.DocumentStatusProcessing))

			stored, err := s.Document().Get(context.TODO(), oldest.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.DocumentStatusProcessing))
		})

		It("returns ErrRecordNotFound when the queue is empty", func() {
			_, err := s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})

		It("never hands the same document to two claimers", func() {
			base := time.Now().UTC().Add(-time.Hour)
			first := newDoc("chart-1.png", base)
			second := newDoc("chart-2.png", base.Add(time.Minute))

			claimed1, err := s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(BeNil())
			claimed2, err := s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(BeNil())

			Expect(claimed1.ID).To(Equal(first.ID))
			Expect(claimed2.ID).To(Equal(second.ID))

			_, err = s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})

		It("skips documents that already reached a terminal status", func() {
			base := time.Now().UTC().Add(-time.Hour)
			done := newDoc("done.png", base)
			Expect(s.Document().UpdateStatus(context.TODO(), done.ID, model.DocumentStatusComplete, "")).To(BeNil())
			pending := newDoc("pending.png", base.Add(time.Minute))

			claimed, err := s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(BeNil())
			Expect(claimed.ID).To(Equal(pending.ID))
		})
	})

	Context("status", func() {
		It("stamps processed_at on terminal transitions", func() {
			doc := newDoc("chart.png", time.Now().UTC())

			Expect(s.Document().UpdateStatus(context.TODO(), doc.ID, model.DocumentStatusFailed, "boom")).To(BeNil())

			stored, err := s.Document().Get(context.TODO(), doc.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.DocumentStatusFailed))
			Expect(stored.ErrorMessage).To(Equal("boom"))
			Expect(stored.ProcessedAt).ToNot(BeNil())
		})

		It("returns ErrRecordNotFound for an unknown document", func() {
			err := s.Document().UpdateStatus(context.TODO(), uuid.New(), model.DocumentStatusComplete, "")
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})

		It("accumulates the critical flag counter", func() {
			doc := newDoc("chart.png", time.Now().UTC())

			Expect(s.Document().IncrementCriticalFlags(context.TODO(), doc.ID, 2)).To(BeNil())
			Expect(s.Document().IncrementCriticalFlags(context.TODO(), doc.ID, 1)).To(BeNil())

			stored, err := s.Document().Get(context.TODO(), doc.ID)
			Expect(err).To(BeNil())
			Expect(stored.CriticalFlagsCount).To(Equal(3))
		})
	})

	Context("requeue", func() {
		It("resets a failed document back to pending", func() {
			doc := newDoc("chart.png", time.Now().UTC())
			Expect(s.Document().UpdateStatus(context.TODO(), doc.ID, model.DocumentStatusFailed, "boom")).To(BeNil())
			Expect(s.Document().IncrementCriticalFlags(context.TODO(), doc.ID, 2)).To(BeNil())

			Expect(s.Document().Requeue(context.TODO(), doc.ID)).To(BeNil())

			stored, err := s.Document().Get(context.TODO(), doc.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.DocumentStatusPending))
			Expect(stored.ErrorMessage).To(BeEmpty())
			Expect(stored.ProcessedAt).To(BeNil())
		})

		It("keeps the critical flag counter across requeues", func() {
			doc := newDoc("chart.png", time.Now().UTC())
			Expect(s.Document().UpdateStatus(context.TODO(), doc.ID, model.DocumentStatusFailed, "boom")).To(BeNil())
			Expect(s.Document().IncrementCriticalFlags(context.TODO(), doc.ID, 2)).To(BeNil())

			Expect(s.Document().Requeue(context.TODO(), doc.ID)).To(BeNil())

			stored, err := s.Document().Get(context.TODO(), doc.ID)
			Expect(err).To(BeNil())
			Expect(stored.CriticalFlagsCount).To(Equal(2))
		})

		It("refuses to requeue a pending document", func() {
			doc := newDoc("chart.png", time.Now().UTC())
			err := s.Document().Requeue(context.TODO(), doc.ID)
			Expect(err).To(Equal(store.ErrInvalidTransition))
		})

		It("returns ErrRecordNotFound for an unknown document", func() {
			err := s.Document().Requeue(context.TODO(), uuid.New())
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})
	})

	Context("recovery", func() {
		It("moves every processing document back to pending", func() {
			base := time.Now().UTC().Add(-time.Hour)
			newDoc("a.png", base)
			newDoc("b.png", base.Add(time.Minute))
			_, err := s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(BeNil())
			_, err = s.Document().ClaimNextPending(context.TODO())
			Expect(err).To(BeNil())

			recovered, err := s.Document().RecoverStalled(context.TODO())
			Expect(err).To(BeNil())
			Expect(recovered).To(Equal(int64(2)))

			stats, err := s.Document().Stats(context.TODO())
			Expect(err).To(BeNil())
			Expect(stats[model.DocumentStatusPending]).To(Equal(int64(2)))
			Expect(stats[model.DocumentStatusProcessing]).To(Equal(int64(0)))
		})
	})

	Context("listing", func() {
		It("returns the newest uploads first", func() {
			base := time.Now().UTC().Add(-time.Hour)
			newDoc("old.png", base)
			newest := newDoc("new.png", base.Add(time.Minute))

			docs, err := s.Document().Recent(context.TODO(), 10)
			Expect(err).To(BeNil())
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].ID).To(Equal(newest.ID))
		})

		It("counts documents per status", func() {
			base := time.Now().UTC().Add(-time.Hour)
			newDoc("a.png", base)
			failed := newDoc("b.png", base.Add(time.Minute))
			Expect(s.Document().UpdateStatus(context.TODO(), failed.ID, model.DocumentStatusFailed, "boom")).To(BeNil())

			stats, err := s.Document().Stats(context.TODO())
			Expect(err).To(BeNil())
			Expect(stats[model.DocumentStatusPending]).To(Equal(int64(1)))
			Expect(stats[model.DocumentStatusFailed]).To(Equal(int64(1)))
		})
	})
})
