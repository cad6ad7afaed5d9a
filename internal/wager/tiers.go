package wager

import (
	"github.com/shopspring/decimal"

	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/rng"
)

// Tier table, applied to a uniform roll in [1, 100]:
//
//	1       jackpot       exactly 10x
//	2-5     big win       2.0x-5.0x
//	6-25    normal win    1.1x-1.9x
//	26-100  consolation   0.1x-0.9x
//
// Multipliers inside a bracket are uniform in tenth steps.
func rollTier(src rng.Source) (model.Tier, decimal.Decimal, int) {
	roll := rng.Roll(src, 1, 100)

	var tier model.Tier
	var tenths int
	switch {
	case roll == 1:
		tier, tenths = model.TierJackpot, 100
	case roll <= 5:
		tier, tenths = model.TierBigWin, rng.Roll(src, 20, 50)
	case roll <= 25:
		tier, tenths = model.TierNormalWin, rng.Roll(src, 11, 19)
	default:
		tier, tenths = model.TierConsolation, rng.Roll(src, 1, 9)
	}
	return tier, decimal.New(int64(tenths), -1), roll
}
