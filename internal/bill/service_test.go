package bill

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/ebon-tracker/internal/ebon"
)

var _ = Describe("Service", func() {
	var (
		db        *mockDB
		storage   *mockStorage
		extractor *mockExtractor
		idGen     *mockIDGenerator
		timeSrc   *mockTimeSource
		service   *Service
		ctx       context.Context
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		idGen = &mockIDGenerator{ids: []string{"bill-1", "bill-2", "bill-3"}}
		timeSrc = &mockTimeSource{now: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, extractor, storage, idGen, timeSrc)
		ctx = context.Background()
	})

	Describe("Ingest", func() {
		var (
			userID  string
			data    []byte
			outcome *Outcome
			err     error
		)

		BeforeEach(func() {
			userID = "alice"
			data = []byte("%PDF ebon one")
		})

		JustBeforeEach(func() {
			outcome, err = service.Ingest(ctx, userID, "REWE-eBon.pdf", data, "application/pdf")
		})

		When("the eBon is new", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("creates a new bill", func() {
				Expect(outcome.Existing).To(BeFalse())
				Expect(outcome.Bill.ID).To(Equal("bill-1"))
				Expect(db.bills).To(HaveKey("bill-1"))
			})

			It("uses the declared total, timestamp and owner", func() {
				Expect(outcome.Bill.Value.Equal(decimal.RequireFromString("3.70"))).To(BeTrue())
				Expect(outcome.Bill.DateTime).To(Equal(sampleTime))
				Expect(outcome.Bill.UserID).To(Equal("alice"))
				Expect(outcome.Bill.CreatedAt).To(Equal(timeSrc.now))
			})

			It("keeps the items in printed order with their continuation data", func() {
				Expect(outcome.Bill.Expenses).To(HaveLen(2))
				apples := outcome.Bill.Expenses[0]
				Expect(apples.Name).To(Equal("Apples"))
				Expect(apples.Weight.Valid).To(BeTrue())
				Expect(apples.Weight.Decimal.Equal(decimal.RequireFromString("0.5"))).To(BeTrue())
				Expect(outcome.Bill.Expenses[1].Name).To(Equal("Bread"))
				Expect(outcome.Bill.Expenses[1].Quantity).To(Equal(1))
			})

			It("stamps every expense with the bill timestamp", func() {
				for _, e := range outcome.Bill.Expenses {
					Expect(e.DateTime).To(Equal(sampleTime))
				}
			})

			It("stores the document content addressed", func() {
				name := "alice_ebon-" + Hash(data) + ".pdf"
				Expect(outcome.Bill.FileHash).To(Equal(Hash(data)))
				Expect(outcome.Bill.Filename).To(Equal(name))
				Expect(storage.files).To(HaveKeyWithValue(name, data))
			})

			It("passes the content type to the extractor", func() {
				Expect(extractor.lastCT).To(Equal("application/pdf"))
			})
		})

		When("the same document was already uploaded", func() {
			BeforeEach(func() {
				_, err := service.Ingest(ctx, userID, "first.pdf", data, "application/pdf")
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the existing bill without extracting again", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Existing).To(BeTrue())
				Expect(outcome.Bill.ID).To(Equal("bill-1"))
				Expect(extractor.calls).To(Equal(1))
				Expect(db.bills).To(HaveLen(1))
			})
		})

		When("a different document has the same transaction time", func() {
			BeforeEach(func() {
				_, err := service.Ingest(ctx, userID, "first.pdf", []byte("%PDF printed copy"), "application/pdf")
				Expect(err).NotTo(HaveOccurred())
			})

			It("resolves to the stored bill", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Existing).To(BeTrue())
				Expect(outcome.Bill.ID).To(Equal("bill-1"))
				Expect(db.bills).To(HaveLen(1))
			})

			It("does not store the second document", func() {
				Expect(storage.files).To(HaveLen(1))
			})
		})

		When("another user uploaded the same eBon", func() {
			BeforeEach(func() {
				_, err := service.Ingest(ctx, "bob", "first.pdf", data, "application/pdf")
				Expect(err).NotTo(HaveOccurred())
			})

			It("creates a separate bill", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Existing).To(BeFalse())
				Expect(outcome.Bill.ID).To(Equal("bill-2"))
				Expect(db.bills).To(HaveLen(2))
			})
		})

		When("the items do not add up to the total", func() {
			BeforeEach(func() {
				extractor.text = "Apples 2,50 A\nBread 1,21 A\nDatum: 01.01.2024\nUhrzeit: 10:00:00 Uhr\nSUMME EUR 3,70"
			})

			It("rejects the eBon with the mismatch", func() {
				Expect(err).To(MatchError(ebon.ErrTotalMismatch))
				var mismatch *ebon.TotalMismatchError
				Expect(errors.As(err, &mismatch)).To(BeTrue())
				Expect(mismatch.Actual.Equal(decimal.RequireFromString("3.71"))).To(BeTrue())
			})

			It("writes nothing", func() {
				Expect(db.bills).To(BeEmpty())
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("the text is not an eBon", func() {
			BeforeEach(func() {
				extractor.text = "Dear customer,\nthank you."
			})

			It("returns ErrUnsupportedDocument", func() {
				Expect(err).To(MatchError(ebon.ErrUnsupportedDocument))
			})
		})

		When("the extractor fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("mupdf exploded")
				extractor.err = setupErr
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(setupErr))
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("storage save fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("storage error")
				storage.saveErr = setupErr
			})

			It("returns the error and stores no bill", func() {
				Expect(err).To(MatchError(setupErr))
				Expect(db.bills).To(BeEmpty())
			})
		})

		When("the database insert fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("disk full")
				db.insertErr = setupErr
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(setupErr))
			})

			It("cleans up the saved file", func() {
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("a concurrent upload stores the eBon first", func() {
			BeforeEach(func() {
				db.beforeInsert = func() {
					db.beforeInsert = nil
					db.put(&Bill{ID: "racer", UserID: "alice", DateTime: sampleTime, FileHash: "other"})
				}
			})

			It("returns the winning bill", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Existing).To(BeTrue())
				Expect(outcome.Bill.ID).To(Equal("racer"))
				Expect(db.bills).To(HaveLen(1))
			})

			It("removes the document it saved", func() {
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("a time zone is configured", func() {
			BeforeEach(func() {
				berlin, lerr := time.LoadLocation("Europe/Berlin")
				Expect(lerr).NotTo(HaveOccurred())
				service = NewServiceWithDeps(db, extractor, storage, idGen, timeSrc, ebon.WithLocation(berlin))
			})

			It("interprets the printed time in that zone", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Bill.DateTime.UTC()).To(Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
			})
		})
	})

	Describe("ListBills", func() {
		BeforeEach(func() {
			db.put(&Bill{ID: "old", UserID: "alice", DateTime: sampleTime})
			db.put(&Bill{ID: "new", UserID: "alice", DateTime: sampleTime.Add(24 * time.Hour)})
			db.put(&Bill{ID: "bob", UserID: "bob", DateTime: sampleTime})
		})

		It("returns the user's bills newest first", func() {
			bills, err := service.ListBills(ctx, "alice", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(HaveLen(2))
			Expect(bills[0].ID).To(Equal("new"))
		})

		It("applies the limit", func() {
			bills, err := service.ListBills(ctx, "alice", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(HaveLen(1))
			Expect(bills[0].ID).To(Equal("new"))
		})
	})

	Describe("GetBillFile", func() {
		BeforeEach(func() {
			storage.files["alice_ebon-abc.pdf"] = []byte("pdf bytes")
			db.put(&Bill{ID: "b1", UserID: "alice", Filename: "alice_ebon-abc.pdf"})
		})

		It("returns the stored document", func() {
			data, contentType, err := service.GetBillFile(ctx, "b1")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("pdf bytes")))
			Expect(contentType).To(Equal("application/pdf"))
		})

		It("returns ErrBillNotFound for an unknown bill", func() {
			_, _, err := service.GetBillFile(ctx, "missing")
			Expect(err).To(MatchError(ErrBillNotFound))
		})
	})

	Describe("DeleteBill", func() {
		BeforeEach(func() {
			storage.files["alice_ebon-abc.pdf"] = []byte("pdf bytes")
			db.put(&Bill{ID: "b1", UserID: "alice", Filename: "alice_ebon-abc.pdf"})
		})

		It("removes the bill and its document", func() {
			Expect(service.DeleteBill(ctx, "b1")).To(Succeed())
			Expect(db.bills).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("still deletes the bill when the document is gone", func() {
			storage.deleteErr = errors.New("gone")
			Expect(service.DeleteBill(ctx, "b1")).To(Succeed())
			Expect(db.bills).To(BeEmpty())
		})
	})
})
