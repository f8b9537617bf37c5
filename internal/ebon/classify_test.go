package ebon

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classify", func() {
	var (
		text string
		line Line
	)

	JustBeforeEach(func() {
		line = Classify(text)
	})

	When("the line is a product", func() {
		BeforeEach(func() {
			text = "Apples 2,50 A"
		})

		It("should be a product line", func() {
			Expect(line.Kind).To(Equal(KindProduct))
		})

		It("should capture the name", func() {
			Expect(line.Name).To(Equal("Apples"))
		})

		It("should decode the value", func() {
			Expect(line.Value.Equal(dec("2.50"))).To(BeTrue())
		})
	})

	When("the product has a promotion marker", func() {
		BeforeEach(func() {
			text = "BIO BANANE 1,99 B *"
		})

		It("should be a product line", func() {
			Expect(line.Kind).To(Equal(KindProduct))
			Expect(line.Name).To(Equal("BIO BANANE"))
		})
	})

	When("the product is a refund", func() {
		BeforeEach(func() {
			text = "PFAND 0,25 EUR -0,25 B"
		})

		It("should keep the sign of the value", func() {
			Expect(line.Kind).To(Equal(KindProduct))
			Expect(line.Value.Equal(dec("-0.25"))).To(BeTrue())
		})

		It("should keep the unit price in the name", func() {
			Expect(line.Name).To(Equal("PFAND 0,25 EUR"))
		})
	})

	When("the line is a scale weight", func() {
		BeforeEach(func() {
			text = "   0,500 kg x   5,00 EUR/kg"
		})

		It("should be a weight_scale line", func() {
			Expect(line.Kind).To(Equal(KindWeightScale))
		})

		It("should decode weight and price per kg", func() {
			Expect(line.Weight.Equal(dec("0.5"))).To(BeTrue())
			Expect(line.PricePerKg.Equal(dec("5"))).To(BeTrue())
		})
	})

	When("the line is a manually keyed weight", func() {
		BeforeEach(func() {
			text = "Handeingabe E-Bon 0,312 kg"
		})

		It("should be a weight_manual line", func() {
			Expect(line.Kind).To(Equal(KindWeightManual))
			Expect(line.Weight.Equal(dec("0.312"))).To(BeTrue())
		})
	})

	When("the manual weight is not a decimal comma number", func() {
		BeforeEach(func() {
			text = "Handeingabe E-Bon 1 kg"
		})

		It("should still be classified", func() {
			Expect(line.Kind).To(Equal(KindWeightManual))
		})

		It("should carry ErrMalformedNumber", func() {
			Expect(line.Err).To(MatchError(ErrMalformedNumber))
		})
	})

	When("the line is a quantity", func() {
		BeforeEach(func() {
			text = "   2 Stk x   1,49"
		})

		It("should be a quantity line", func() {
			Expect(line.Kind).To(Equal(KindQuantity))
		})

		It("should decode quantity and price per item", func() {
			Expect(line.Quantity).To(Equal(2))
			Expect(line.PricePerItem.Equal(dec("1.49"))).To(BeTrue())
		})
	})

	When("the line is a labeled date", func() {
		BeforeEach(func() {
			text = "Datum:   01.01.2024"
		})

		It("should be a date line", func() {
			Expect(line.Kind).To(Equal(KindDate))
			Expect(line.Date).To(Equal("01.01.2024"))
		})
	})

	When("the line is a labeled time", func() {
		BeforeEach(func() {
			text = "Uhrzeit: 10:00:00 Uhr"
		})

		It("should be a time line", func() {
			Expect(line.Kind).To(Equal(KindTime))
			Expect(line.Time).To(Equal("10:00:00"))
		})
	})

	When("the line carries date and time together", func() {
		BeforeEach(func() {
			text = "  01.01.2024   10:15     Bon-Nr.:1234"
		})

		It("should be a date_time line", func() {
			Expect(line.Kind).To(Equal(KindDateTime))
		})

		It("should fill in zero seconds", func() {
			Expect(line.Date).To(Equal("01.01.2024"))
			Expect(line.Time).To(Equal("10:15:00"))
		})
	})

	When("a labeled date is followed by a time on the same line", func() {
		BeforeEach(func() {
			text = "Datum: 01.01.2024 10:15"
		})

		It("should prefer the combined form", func() {
			Expect(line.Kind).To(Equal(KindDateTime))
		})
	})

	When("the line is the total", func() {
		BeforeEach(func() {
			text = "SUMME          EUR        3,70"
		})

		It("should be a total line", func() {
			Expect(line.Kind).To(Equal(KindTotal))
			Expect(line.Value.Equal(dec("3.70"))).To(BeTrue())
		})
	})

	When("the line is a header or tax summary", func() {
		BeforeEach(func() {
			text = "A= 7,0% 3,46 0,24 3,70"
		})

		It("should be unrecognized", func() {
			Expect(line.Kind).To(Equal(KindUnrecognized))
		})

		It("should not carry an error", func() {
			Expect(line.Err).NotTo(HaveOccurred())
		})
	})
})

var _ = DescribeTable("Classify is total",
	func(text string) {
		var line Line
		Expect(func() { line = Classify(text) }).NotTo(Panic())
		Expect(kindNames).To(HaveKey(line.Kind))
	},
	Entry("empty", ""),
	Entry("whitespace", "   \t "),
	Entry("store header", "REWE Markt GmbH"),
	Entry("payment", "Geg. EC-Cash EUR 3,70"),
	Entry("non ascii", "Müller Käse 2,99 A"),
	Entry("only a number", "2,50"),
)

var _ = Describe("Precedence", func() {
	It("should try the combined date and time before the date", func() {
		names := Precedence()
		Expect(names).To(ContainElements("date_time", "date"))
		var dateTime, date int
		for i, n := range names {
			switch n {
			case "date_time":
				dateTime = i
			case "date":
				date = i
			}
		}
		Expect(dateTime).To(BeNumerically("<", date))
	})

	It("should try products first", func() {
		Expect(Precedence()[0]).To(Equal("product"))
	})
})
