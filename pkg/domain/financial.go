package domain

// Financial is the aggregate business summary edited from the
// dashboard. A single record exists.
type Financial struct {
	AdSpend    float64 `json:"adSpend"`
	TotalSales float64 `json:"totalSales"`
	SalesCount int     `json:"salesCount"`
}
