package discovery

import (
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// analyzeWallet delegates to domain.AnalyzeWallet (§4.3), the formula set
// shared with the batch funnel.
func analyzeWallet(address string, open []domain.Position, closed []domain.ClosedPosition, balance float64, username string, accountCreated *time.Time, now time.Time) domain.Wallet {
	return domain.AnalyzeWallet(address, open, closed, balance, username, accountCreated, now)
}
