package bill

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/ebon-tracker/internal/ebon"
)

// Bill is one stored eBon with its expenses
type Bill struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	DateTime  time.Time       `json:"datetime"`
	Value     decimal.Decimal `json:"value"`     // declared total
	FileHash  string          `json:"file_hash"` // sha256 of the uploaded document
	Filename  string          `json:"filename"`  // path in document storage
	Expenses  []Expense       `json:"expenses"`
	CreatedAt time.Time       `json:"created_at"`
}

// Expense is a single purchased item of a bill
type Expense struct {
	Name         string              `json:"name"`
	Value        decimal.Decimal     `json:"value"`
	Quantity     int                 `json:"quantity"`
	PricePerItem decimal.NullDecimal `json:"price_per_item"`
	Weight       decimal.NullDecimal `json:"weight"` // kg
	PricePerKg   decimal.NullDecimal `json:"price_per_kg"`
	Tags         *string             `json:"tags"`
	DateTime     time.Time           `json:"datetime"`
}

// expensesFrom converts parsed items, keeping printed order
func expensesFrom(items []ebon.Item) []Expense {
	expenses := make([]Expense, 0, len(items))
	for _, item := range items {
		e := Expense{
			Name:         item.Name,
			Value:        item.Value,
			Quantity:     item.Quantity,
			PricePerItem: item.PricePerItem,
			Weight:       item.Weight,
			PricePerKg:   item.PricePerKg,
			DateTime:     item.Timestamp,
		}
		if item.Tags != "" {
			tags := item.Tags
			e.Tags = &tags
		}
		expenses = append(expenses, e)
	}
	return expenses
}
