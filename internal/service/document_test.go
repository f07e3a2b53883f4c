package service_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/service"
	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
)

var _ = Describe("document service", Ordered, func() {
	var (
		s         store.Store
		gormdb    *gorm.DB
		dir       string
		uploadDir string
		srv       *service.DocumentService
	)

	BeforeAll(func() {
		s, gormdb, dir = newTestStore()
		uploadDir = filepath.Join(dir, "uploads")
		demoChart := filepath.Join(dir, "demo_chart.png")
		Expect(os.WriteFile(demoChart, []byte("demo-image-bytes"), 0o644)).To(BeNil())
		srv = service.NewDocumentService(s, uploadDir, 1024, demoChart)
	})

	AfterAll(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM documents;")
		gormdb.Exec("DELETE FROM stage_results;")
		gormdb.Exec("DELETE FROM safety_flags;")
	})

	Context("upload", func() {
		It("stores the file and queues a pending document", func() {
			result, err := srv.CreateDocument(context.TODO(), "chart.png", "image/png", []byte("png-bytes"))
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal("queued"))
			Expect(result.Filename).To(Equal("chart.png"))

			document, err := s.Document().Get(context.TODO(), result.DocumentID)
			Expect(err).To(BeNil())
			Expect(document.Status).To(Equal(model.DocumentStatusPending))
			Expect(document.ContentType).To(Equal("image/png"))

			content, err := os.ReadFile(document.FilePath)
			Expect(err).To(BeNil())
			Expect(content).To(Equal([]byte("png-bytes")))
		})

		It("rejects unsupported content types", func() {
			_, err := srv.CreateDocument(context.TODO(), "notes.txt", "text/plain", []byte("hello"))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidRequest{}))
		})

		It("rejects files over the size limit", func() {
			_, err := srv.CreateDocument(context.TODO(), "big.png", "image/png", make([]byte, 2048))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidRequest{}))
		})
	})

	Context("simulate", func() {
		It("queues five copies of the demo chart by default", func() {
			result, err := srv.Simulate(context.TODO(), 0)
			Expect(err).To(BeNil())
			Expect(result.QueuedCount).To(Equal(5))
			Expect(result.DocumentIDs).To(HaveLen(5))

			docs, err := s.Document().Recent(context.TODO(), 10)
			Expect(err).To(BeNil())
			Expect(docs).To(HaveLen(5))

			filenames := make([]string, 0, len(docs))
			for _, d := range docs {
				filenames = append(filenames, d.Filename)
			}
			Expect(filenames).To(ContainElement("demo_chart.png"))
			Expect(filenames).To(ContainElement("synthetic_chart_02.png"))
		})

		It("fails when the demo chart is missing", func() {
			broken := service.NewDocumentService(s, uploadDir, 1024, filepath.Join(dir, "nope.png"))
			_, err := broken.Simulate(context.TODO(), 1)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})

	Context("read", func() {
		It("returns ErrResourceNotFound for an unknown document", func() {
			_, err := srv.Get(context.TODO(), uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})

		It("redacts the patient name from the extraction summary", func() {
			upload, err := srv.CreateDocument(context.TODO(), "chart.png", "image/png", []byte("png"))
			Expect(err).To(BeNil())

			extraction := []byte(`{"patient":{"name_raw":"Ramesh Kumar","age":34,"sex":"M","registration_number":"2024/1182"},"hospital":{"name":"City Oncology"},"cycles":[{"cycle_id":"C1"}],"overall_confidence":0.9}`)
			_, err = s.StageResult().Create(context.TODO(), &model.StageResult{
				DocumentID: upload.DocumentID,
				Stage:      model.StageExtraction,
				Status:     model.StageStatusSuccess,
				Output:     extraction,
			})
			Expect(err).To(BeNil())

			results, err := srv.Results(context.TODO(), upload.DocumentID)
			Expect(err).To(BeNil())
			Expect(results.ExtractionSummary).ToNot(BeNil())
			Expect(results.ExtractionSummary.Hospital.Name).To(Equal("City Oncology"))
			Expect(results.ExtractionSummary.CyclesCount).To(Equal(1))
			Expect(results.ExtractionSummary.Patient.RegistrationNumber).To(Equal("2024/1182"))
			Expect(*results.ExtractionSummary.Patient.Age).To(Equal(34))
		})

		It("skips failed stage rows in the results", func() {
			upload, err := srv.CreateDocument(context.TODO(), "chart.png", "image/png", []byte("png"))
			Expect(err).To(BeNil())

			_, err = s.StageResult().Create(context.TODO(), &model.StageResult{
				DocumentID: upload.DocumentID,
				Stage:      model.StageStandardization,
				Status:     model.StageStatusFailed,
			})
			Expect(err).To(BeNil())

			results, err := srv.Results(context.TODO(), upload.DocumentID)
			Expect(err).To(BeNil())
			Expect(results.Standardization).To(BeNil())
		})
	})

	Context("retry", func() {
		It("requeues a failed document", func() {
			upload, err := srv.CreateDocument(context.TODO(), "chart.png", "image/png", []byte("png"))
			Expect(err).To(BeNil())
			Expect(s.Document().UpdateStatus(context.TODO(), upload.DocumentID, model.DocumentStatusFailed, "boom")).To(BeNil())

			Expect(srv.Retry(context.TODO(), upload.DocumentID)).To(BeNil())

			document, err := s.Document().Get(context.TODO(), upload.DocumentID)
			Expect(err).To(BeNil())
			Expect(document.Status).To(Equal(model.DocumentStatusPending))
		})

		It("refuses to retry a pending document", func() {
			upload, err := srv.CreateDocument(context.TODO(), "chart.png", "image/png", []byte("png"))
			Expect(err).To(BeNil())

			err = srv.Retry(context.TODO(), upload.DocumentID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrNotRetryable{}))
		})

		It("returns ErrResourceNotFound for an unknown document", func() {
			err := srv.Retry(context.TODO(), uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})

	Context("queue", func() {
		It("reports stats, unresolved flags, and recent documents", func() {
			upload, err := srv.CreateDocument(context.TODO(), "chart.png", "image/png", []byte("png"))
			Expect(err).To(BeNil())
			_, err = s.SafetyFlag().Create(context.TODO(), &model.SafetyFlag{
				DocumentID: upload.DocumentID,
				FlagType:   model.FlagDoseVariance,
				Severity:   model.SeverityHigh,
			})
			Expect(err).To(BeNil())

			queue, err := srv.Queue(context.TODO())
			Expect(err).To(BeNil())
			Expect(queue.Stats[model.DocumentStatusPending]).To(Equal(int64(1)))
			Expect(queue.UnresolvedFlags).To(Equal(1))
			Expect(queue.RecentDocuments).To(HaveLen(1))
		})
	})
})
