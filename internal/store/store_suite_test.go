package store_test

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/config"
	"github.com/biovault/document-agent/internal/store"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Store Suite")
}

// newTestStore opens a fresh sqlite database in its own temp dir and runs
// the schema migration. Callers must Close() the store and remove the dir.
func newTestStore() (store.Store, *gorm.DB, string) {
	dir, err := os.MkdirTemp("", "biovault-store-test-")
	Expect(err).To(BeNil())

	cfg, err := config.NewDefault()
	Expect(err).To(BeNil())
	cfg.Database.Type = "sqlite"
	cfg.Database.DataDir = dir

	db, err := store.InitDB(cfg)
	Expect(err).To(BeNil())

	s := store.NewStore(db)
	Expect(s.InitialMigration()).To(BeNil())
	return s, db, dir
}
