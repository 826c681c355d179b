package domain

// LedgerStats is the aggregate ledger across the entire run.
type LedgerStats struct {
	TotalTrades     int
	Wins            int
	Losses          int
	Pending         int
	TotalPnLUSD     float64
	AvgPnLUSD       float64
	AvgLatencySec   float64
	AvgAdversePct   float64
	AvgFavorablePct float64
	Equity          float64
	WinRate         float64 // percent, resolved trades only
}
