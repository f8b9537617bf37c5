package inbox

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/ebon-tracker/internal/bill"
)

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
	return path
}

var _ = Describe("Importer", func() {
	var (
		service  *mockService
		importer *Importer
		dir      string
	)

	BeforeEach(func() {
		service = newMockService()
		dir = GinkgoT().TempDir()
		importer = NewImporter(service, "alice", 2, nil)
	})

	Describe("ImportDir", func() {
		var (
			summary Summary
			err     error
		)

		JustBeforeEach(func() {
			summary, err = importer.ImportDir(context.Background(), dir)
		})

		When("the directory holds new, existing, known and broken eBons", func() {
			BeforeEach(func() {
				writeFile(dir, "a.pdf", "first")
				writeFile(dir, "b.PDF", "second")
				writeFile(dir, "c.pdf", "third")
				writeFile(dir, "d.pdf", "fourth")
				writeFile(dir, "notes.txt", "ignored")
				Expect(os.Mkdir(filepath.Join(dir, "sub.pdf"), 0755)).To(Succeed())

				service.existing["b.PDF"] = true
				service.failing["c.pdf"] = true
				service.hashes = []string{bill.Hash([]byte("fourth"))}
			})

			It("does not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("counts every outcome", func() {
				Expect(summary).To(Equal(Summary{Imported: 1, Existing: 1, Skipped: 1, Failed: 1}))
			})

			It("only ingests matching files with unknown hashes", func() {
				Expect(service.called()).To(ConsistOf("a.pdf", "b.PDF", "c.pdf"))
			})

			It("passes the PDF content type", func() {
				Expect(service.types["a.pdf"]).To(Equal("application/pdf"))
			})
		})

		When("many files are imported", func() {
			BeforeEach(func() {
				service.delay = 20 * time.Millisecond
				for _, name := range []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf", "6.pdf"} {
					writeFile(dir, name, name)
				}
			})

			It("never runs more than the configured number at once", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(summary.Imported).To(Equal(6))
				Expect(service.maxActive).To(BeNumerically("<=", 2))
			})
		})

		When("the known hashes cannot be listed", func() {
			BeforeEach(func() {
				writeFile(dir, "a.pdf", "first")
				service.hashErr = os.ErrPermission
			})

			It("returns the error without ingesting", func() {
				Expect(err).To(MatchError(os.ErrPermission))
				Expect(service.callCount()).To(BeZero())
			})
		})

		When("the directory does not exist", func() {
			BeforeEach(func() {
				dir = filepath.Join(dir, "missing")
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("ImportFile", func() {
		It("ingests the file under its base name", func() {
			importer = NewImporter(service, "alice", 1, []string{"txt"})
			path := writeFile(dir, "ebon.txt", "SUMME EUR 1,00")

			outcome, err := importer.ImportFile(context.Background(), path)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Bill.ID).To(Equal("id-ebon.txt"))
			Expect(outcome.Bill.UserID).To(Equal("alice"))
			Expect(service.types["ebon.txt"]).To(Equal("text/plain"))
		})

		It("wraps ingest failures with the path", func() {
			path := writeFile(dir, "bad.pdf", "x")
			service.failing["bad.pdf"] = true

			_, err := importer.ImportFile(context.Background(), path)
			Expect(err).To(MatchError(ContainSubstring("bad.pdf")))
		})
	})
})
