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

var _ = Describe("stage result store", Ordered, func() {
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
		gormdb.Exec("DELETE FROM stage_results;")
	})

	addResult := func(docID uuid.UUID, stage, status string, output string) *model.StageResult {
		result, err := s.StageResult().Create(context.TODO(), &model.StageResult{
			DocumentID: docID,
			Stage:      stage,
			Status:     status,
			Output:     []byte(output),
		})
		Expect(err).To(BeNil())
		return result
	}

	It("keeps every row, append only", func() {
		docID := uuid.New()
		addResult(docID, model.StageExtraction, model.StageStatusFailed, "")
		addResult(docID, model.StageExtraction, model.StageStatusSuccess, `{"cycles":[]}`)

		var count int64
		Expect(gormdb.Model(&model.StageResult{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(int64(2)))
	})

	It("returns only the newest row per stage", func() {
		docID := uuid.New()
		addResult(docID, model.StageExtraction, model.StageStatusFailed, "")
		latestExtraction := addResult(docID, model.StageExtraction, model.StageStatusSuccess, `{"cycles":[]}`)
		addResult(docID, model.StageStandardization, model.StageStatusSuccess, `{"standardized_drugs":[]}`)

		rows, err := s.StageResult().LatestByDocument(context.TODO(), docID)
		Expect(err).To(BeNil())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].Stage).To(Equal(model.StageExtraction))
		Expect(rows[0].ID).To(Equal(latestExtraction.ID))
		Expect(rows[1].Stage).To(Equal(model.StageStandardization))
	})

	It("does not mix rows across documents", func() {
		docID := uuid.New()
		addResult(docID, model.StageExtraction, model.StageStatusSuccess, `{}`)
		addResult(uuid.New(), model.StageExtraction, model.StageStatusSuccess, `{}`)

		rows, err := s.StageResult().LatestByDocument(context.TODO(), docID)
		Expect(err).To(BeNil())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].DocumentID).To(Equal(docID))
	})
})
