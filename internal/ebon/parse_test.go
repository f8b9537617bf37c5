package ebon

import (
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// rewePrint mimics the text layer go-fitz extracts from a REWE eBon PDF
const rewePrint = `                 REWE
        Musterstraße 1
         12345 Musterstadt
      UID Nr.: DE123456789
                                         EUR
BIO BANANE                        1,99 A *
   0,842 kg x   2,36 EUR/kg
JOGHURT MILD                      2,98 B
   2 Stk x   1,49
LEERGUT                          -0,25 A
THEKE WURST                       3,12 A
Handeingabe E-Bon 0,260 kg
--------------------------------------------
SUMME                     EUR       7,84
============================================
Geg. EC-Cash              EUR       7,84

          * * Kundenbeleg * *
Datum:                          01.06.2024
Uhrzeit:                      18:42:07 Uhr
Beleg-Nr. 1234
Steuer  %     Netto    Steuer    Brutto
A=  7,0%      4,55      0,31      4,86
B= 19,0%      2,50      0,48      2,98
Gesamtbetrag  7,05      0,79      7,84
`

var _ = Describe("Parse", func() {
	var (
		text    string
		receipt *Receipt
		err     error
	)

	JustBeforeEach(func() {
		receipt, err = Parse(text)
	})

	When("parsing the minimal two item receipt", func() {
		BeforeEach(func() {
			text = strings.Join(sampleLines, "\n")
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return two items", func() {
			Expect(receipt.Items).To(HaveLen(2))
		})

		It("should satisfy the total invariant", func() {
			Expect(Sum(receipt.Items).Sub(receipt.Total).Abs().LessThan(Tolerance)).To(BeTrue())
		})

		It("should stamp the transaction time", func() {
			Expect(receipt.Timestamp).To(Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
		})
	})

	When("the declared total is off by one cent", func() {
		BeforeEach(func() {
			lines := append([]string(nil), sampleLines...)
			lines[5] = "SUMME EUR 3,71"
			text = strings.Join(lines, "\n")
		})

		It("returns ErrTotalMismatch", func() {
			Expect(err).To(MatchError(ErrTotalMismatch))
		})

		It("should report both values", func() {
			var mismatch *TotalMismatchError
			Expect(errors.As(err, &mismatch)).To(BeTrue())
			Expect(mismatch.Expected.Equal(dec("3.71"))).To(BeTrue())
			Expect(mismatch.Actual.Equal(dec("3.70"))).To(BeTrue())
		})

		It("should not return a receipt", func() {
			Expect(receipt).To(BeNil())
		})
	})

	When("one item value is perturbed by one cent", func() {
		BeforeEach(func() {
			lines := append([]string(nil), sampleLines...)
			lines[2] = "Bread 1,21 A"
			text = strings.Join(lines, "\n")
		})

		It("returns ErrTotalMismatch", func() {
			Expect(err).To(MatchError(ErrTotalMismatch))
		})
	})

	When("parsing a full eBon print", func() {
		BeforeEach(func() {
			text = rewePrint
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should find every product", func() {
			names := make([]string, 0, len(receipt.Items))
			for _, item := range receipt.Items {
				names = append(names, item.Name)
			}
			Expect(names).To(Equal([]string{"BIO BANANE", "JOGHURT MILD", "LEERGUT", "THEKE WURST"}))
		})

		It("should keep the deposit refund negative", func() {
			Expect(receipt.Items[2].Value.Equal(dec("-0.25"))).To(BeTrue())
		})

		It("should attach the manual weight", func() {
			Expect(receipt.Items[3].Weight.Decimal.Equal(dec("0.26"))).To(BeTrue())
			Expect(receipt.Items[3].PricePerKg.Valid).To(BeFalse())
		})

		It("should read the labeled date and time", func() {
			Expect(receipt.Timestamp).To(Equal(time.Date(2024, 6, 1, 18, 42, 7, 0, time.UTC)))
		})
	})

	When("the text uses windows line endings", func() {
		BeforeEach(func() {
			text = strings.Join(sampleLines, "\r\n")
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("no line is recognized", func() {
		BeforeEach(func() {
			text = "Lidl Kassenbon\nVielen Dank\n"
		})

		It("returns ErrUnsupportedDocument", func() {
			Expect(err).To(MatchError(ErrUnsupportedDocument))
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = ""
		})

		It("returns ErrUnsupportedDocument", func() {
			Expect(err).To(MatchError(ErrUnsupportedDocument))
		})
	})

	When("parsing the same text twice", func() {
		BeforeEach(func() {
			text = rewePrint
		})

		It("should return equal receipts", func() {
			again, againErr := Parse(text)
			Expect(againErr).NotTo(HaveOccurred())
			Expect(again).To(Equal(receipt))
		})
	})
})

var _ = Describe("Code", func() {
	It("should name wrapped parse errors", func() {
		err := &LineError{Err: ErrDanglingContinuation, Line: 3}
		Expect(Code(err)).To(Equal("dangling_continuation"))
	})

	It("should name total mismatches", func() {
		Expect(Code(&TotalMismatchError{})).To(Equal("total_mismatch"))
	})

	It("should return empty for foreign errors", func() {
		Expect(Code(errors.New("boom"))).To(BeEmpty())
	})
})
