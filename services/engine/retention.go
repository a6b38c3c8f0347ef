package engine

// SellQuantity maps a filled buy onto the quantity its pairing sell should
// liquidate. The remainder stays in the account as retained shares.
//
// Modes:
//
//	none            sell the whole position
//	profit          sell only the quantity whose proceeds recover the cost
//	                basis, retaining the gain as free shares
//	profit_plus_5   cost basis inflated by 5% (retains slightly less)
//	profit_plus_10  cost basis inflated by 10%
//
// sellPrice > buyPrice holds by construction (a sell rung sits above its
// paired buy rung); the caller treats a violation as an invariant failure
// before invoking the policy. The result is clamped to [0, buyQty].
func SellQuantity(buyPrice, sellPrice, buyQty float64, mode RetentionMode) float64 {
	var q float64
	switch mode {
	case RetainNone:
		return buyQty
	case RetainProfit:
		q = buyQty * buyPrice / sellPrice
	case RetainProfitPlus5:
		q = buyQty * buyPrice * 1.05 / sellPrice
	case RetainProfitPlus10:
		q = buyQty * buyPrice * 1.10 / sellPrice
	default:
		return buyQty
	}
	if q < 0 {
		return 0
	}
	if q > buyQty {
		return buyQty
	}
	return q
}
