package plans

import (
	"math"
	"os"
	"strconv"
	"strings"
)

// Plan is one purchasable subscription tier. Prices are in rubles.
type Plan struct {
	ID       string
	Months   int
	Price    float64
	Name     string
	Discount int
}

// Table is the immutable price table. Built once at startup; components
// receive it through their constructors and never re-read the environment.
type Table struct {
	plans     []Plan
	byID      map[string]Plan
	defaultID string
}

// AmountTolerance is how far a charged amount may drift from a plan price
// and still resolve to that plan (gateway rounding, currency formatting).
const AmountTolerance = 1.0

func New(list []Plan, defaultID string) Table {
	byID := make(map[string]Plan, len(list))
	for _, p := range list {
		byID[p.ID] = p
	}
	return Table{plans: list, byID: byID, defaultID: defaultID}
}

// FromEnv builds the standard four-tier table, with PRICE_* overrides.
func FromEnv() Table {
	return New([]Plan{
		{ID: "1_month", Months: 1, Price: envPrice("PRICE_1_MONTH", 3500), Name: "1 месяц"},
		{ID: "3_months", Months: 3, Price: envPrice("PRICE_3_MONTHS", 9450), Name: "3 месяца", Discount: 10},
		{ID: "6_months", Months: 6, Price: envPrice("PRICE_6_MONTHS", 17850), Name: "6 месяцев", Discount: 15},
		{ID: "12_months", Months: 12, Price: envPrice("PRICE_12_MONTHS", 33600), Name: "12 месяцев", Discount: 20},
	}, "1_month")
}

func envPrice(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (t Table) ByID(id string) (Plan, bool) {
	p, ok := t.byID[strings.TrimSpace(id)]
	return p, ok
}

// ByAmount resolves a plan by matching the charged amount against plan
// prices within AmountTolerance.
func (t Table) ByAmount(amount float64) (Plan, bool) {
	for _, p := range t.plans {
		if math.Abs(p.Price-amount) <= AmountTolerance {
			return p, true
		}
	}
	return Plan{}, false
}

func (t Table) Default() Plan {
	return t.byID[t.defaultID]
}

func (t Table) All() []Plan {
	out := make([]Plan, len(t.plans))
	copy(out, t.plans)
	return out
}
