package spending

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
)

// row is one transaction prepared for bucketing: filtered by status and
// non-currency policy, with its timestamp already resolved to a local
// calendar date.
type row struct {
	accountID      string
	localDate      time.Time
	asset          asset.Asset
	amount         decimal.Decimal
	rawDescription string
	annotation     *domain.Annotation
}

// loadRows reads every transaction for the given accounts, applies the
// status filter and non-currency policy, and returns the rows alongside
// the earliest local date seen (for inferring an unset start date).
func (s *Service) loadRows(ctx context.Context, accountIDs []string, tz tzSpec, statusFilter StatusFilter, includeNonCurrency bool) ([]row, *time.Time, error) {
	var rows []row
	var minDate *time.Time

	for _, accountID := range accountIDs {
		transactions, err := s.accounts.Transactions(ctx, accountID, nil, nil)
		if err != nil {
			return nil, nil, err
		}

		for _, tx := range transactions {
			if !includeStatus(tx.Status, statusFilter) {
				continue
			}

			localDate := tz.dateIn(tx.Timestamp)
			if minDate == nil || localDate.Before(*minDate) {
				d := localDate
				minDate = &d
			}

			normalized := tx.Asset.Normalized()
			if !includeNonCurrency && !normalized.IsCurrency() {
				continue
			}

			rows = append(rows, row{
				accountID:      accountID,
				localDate:      localDate,
				asset:          normalized,
				amount:         tx.Amount,
				rawDescription: tx.Description,
				annotation:     tx.Annotation,
			})
		}
	}

	return rows, minDate, nil
}

func includeStatus(status domain.TransactionStatus, filter StatusFilter) bool {
	switch filter {
	case StatusFilterAll:
		return true
	case StatusFilterPostedPending:
		return status == domain.StatusPosted || status == domain.StatusPending
	default: // StatusFilterPosted
		return status == domain.StatusPosted
	}
}
