package server

import (
	"net/http"
	"time"

	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/staleness"
)

// connectionStaleness is the wire shape for one account's balance
// staleness check against the connection that feeds it.
type connectionStaleness struct {
	ConnectionID   string `json:"connection_id"`
	ConnectionName string `json:"connection_name"`
	AccountID      string `json:"account_id,omitempty"`
	AccountName    string `json:"account_name,omitempty"`
	IsStale        bool   `json:"is_stale"`
	AgeSeconds     *int64 `json:"age_seconds"`
	ThresholdSec   int64  `json:"threshold_seconds"`
}

// handleConnectionStaleness serves GET /api/connections/staleness,
// reporting whether each connection's last sync is within the
// effective balance-staleness threshold of every account it feeds —
// resolved per account, account override first.
func (s *Server) handleConnectionStaleness(w http.ResponseWriter, r *http.Request) {
	connections, err := s.accounts.ListConnections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	accounts, err := s.accounts.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	accountByID := make(map[string]domain.Account, len(accounts))
	for _, a := range accounts {
		accountByID[a.ID] = a
	}

	results := make([]connectionStaleness, 0, len(connections))
	for _, conn := range connections {
		// The connection-level override, falling back to the server's
		// configured global when unset, backs ResolveBalanceStaleness's
		// own tier below the account-level override.
		effectiveConn := conn
		if effectiveConn.BalanceStaleness == nil {
			effectiveConn.BalanceStaleness = &s.balanceStaleness
		}

		if len(conn.AccountIDs) == 0 {
			threshold := staleness.ResolveBalanceStaleness(nil, effectiveConn)
			check := staleness.CheckBalanceStaleness(conn, threshold, domain.SystemClock{})
			staleness.LogBalanceStaleness(s.log, conn.Name, check)
			results = append(results, toConnectionStaleness(conn, nil, threshold, check))
			continue
		}

		for _, accountID := range conn.AccountIDs {
			account := accountByID[accountID]
			threshold := staleness.ResolveBalanceStaleness(&account, effectiveConn)
			check := staleness.CheckBalanceStaleness(conn, threshold, domain.SystemClock{})
			staleness.LogBalanceStaleness(s.log, conn.Name+"/"+account.Name, check)
			results = append(results, toConnectionStaleness(conn, &account, threshold, check))
		}
	}

	writeJSON(w, http.StatusOK, results)
}

func toConnectionStaleness(conn domain.Connection, account *domain.Account, threshold time.Duration, check staleness.Check) connectionStaleness {
	var ageSeconds *int64
	if check.Age != nil {
		seconds := int64(check.Age.Seconds())
		ageSeconds = &seconds
	}

	out := connectionStaleness{
		ConnectionID:   conn.ID,
		ConnectionName: conn.Name,
		IsStale:        check.IsStale,
		AgeSeconds:     ageSeconds,
		ThresholdSec:   int64(threshold / time.Second),
	}
	if account != nil {
		out.AccountID = account.ID
		out.AccountName = account.Name
	}
	return out
}
