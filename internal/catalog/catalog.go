// Package catalog serves the static dashboard content: shopping categories,
// current discount listings and the subscription plans. The data is demo
// content with no computation behind it, same as the dashboard pages render.
package catalog

import "github.com/shopspring/decimal"

type Category struct {
	Slug  string
	Title string
}

type Discount struct {
	Title      string
	Category   string
	Price      decimal.Decimal
	PercentOff int64
}

type Plan struct {
	Name            string
	MonthlyPrice    decimal.Decimal
	SavedDeals      string
	DailyAccess     bool
	ExclusiveDeals  bool
	Notifications   string
	CashBackOffer   bool
	PrioritySupport string
}

var categories = []Category{
	{Slug: "grocery", Title: "Grocery"},
	{Slug: "furniture", Title: "Furniture"},
	{Slug: "fashion", Title: "Fashion"},
	{Slug: "electronics", Title: "Electronics"},
	{Slug: "flights", Title: "Flights"},
}

var discounts = []Discount{
	{Title: "Organic Grade A Amber Maple Syrup", Category: "grocery", Price: decimal.NewFromFloat(12.49), PercentOff: 20},
	{Title: "Green Beans with Cracked Pepper & Sea Salt", Category: "grocery", Price: decimal.NewFromFloat(3.99), PercentOff: 15},
	{Title: "Organic Buttermilk Pancake & Waffle Mix, 32 Ounce", Category: "grocery", Price: decimal.NewFromFloat(8.75), PercentOff: 25},
	{Title: "Milk", Category: "grocery", Price: decimal.NewFromFloat(2.49), PercentOff: 10},
	{Title: "Chicken Fillet", Category: "grocery", Price: decimal.NewFromFloat(7.2), PercentOff: 30},
	{Title: "Loaf Of Bread", Category: "grocery", Price: decimal.NewFromFloat(1.99), PercentOff: 10},
}

var plans = []Plan{
	{
		Name:            "Free",
		MonthlyPrice:    decimal.Zero,
		SavedDeals:      "5",
		DailyAccess:     true,
		Notifications:   "Basic",
		PrioritySupport: "None",
	},
	{
		Name:            "Saver",
		MonthlyPrice:    decimal.NewFromFloat(10.9),
		SavedDeals:      "25",
		DailyAccess:     true,
		ExclusiveDeals:  true,
		Notifications:   "Customizable",
		CashBackOffer:   true,
		PrioritySupport: "Email",
	},
	{
		Name:            "Ultimate Save",
		MonthlyPrice:    decimal.NewFromFloat(19.9),
		SavedDeals:      "Unlimited",
		DailyAccess:     true,
		ExclusiveDeals:  true,
		Notifications:   "Customizable",
		CashBackOffer:   true,
		PrioritySupport: "24/7 Priority Support",
	},
}

func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Discounts lists current discounts, optionally filtered by category slug.
// Empty slug means all.
func Discounts(category string) []Discount {
	out := make([]Discount, 0, len(discounts))
	for _, d := range discounts {
		if category == "" || d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// DiscountedPrice applies the percent-off to the listed price, rounded to
// cents.
func (d Discount) DiscountedPrice() decimal.Decimal {
	factor := decimal.NewFromInt(100 - d.PercentOff).Div(decimal.NewFromInt(100))
	return d.Price.Mul(factor).Round(2)
}

func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}
