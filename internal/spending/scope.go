package spending

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/keepbook/internal/domain"
)

// resolveScope picks the account set a report runs over: a single
// account, every account on a connection, or the whole portfolio
// filtered by opts.Ignore.
func (s *Service) resolveScope(ctx context.Context, opts Options) (Scope, []string, error) {
	switch {
	case opts.Account != "":
		account, err := findAccount(ctx, s.accounts, opts.Account)
		if err != nil {
			return Scope{}, nil, err
		}
		if account == nil {
			return Scope{}, nil, fmt.Errorf("spending: account not found: %s: %w", opts.Account, domain.ErrInvalidScope)
		}
		return Scope{Kind: ScopeAccount, ID: account.ID, Name: account.Name}, []string{account.ID}, nil

	case opts.Connection != "":
		conn, err := findConnection(ctx, s.accounts, opts.Connection)
		if err != nil {
			return Scope{}, nil, err
		}
		if conn == nil {
			return Scope{}, nil, fmt.Errorf("spending: connection not found: %s: %w", opts.Connection, domain.ErrInvalidScope)
		}
		accounts, err := s.accounts.ListAccounts(ctx)
		if err != nil {
			return Scope{}, nil, err
		}
		var ids []string
		for _, a := range accounts {
			if a.ConnectionID == conn.ID {
				ids = append(ids, a.ID)
			}
		}
		return Scope{Kind: ScopeConnection, ID: conn.ID, Name: conn.Name}, ids, nil

	default:
		accounts, err := s.accounts.ListAccounts(ctx)
		if err != nil {
			return Scope{}, nil, err
		}
		ignored, err := s.ignoredAccountIDs(ctx, accounts, opts.Ignore)
		if err != nil {
			return Scope{}, nil, err
		}
		var ids []string
		for _, a := range accounts {
			if !ignored[a.ID] {
				ids = append(ids, a.ID)
			}
		}
		return Scope{Kind: ScopePortfolio}, ids, nil
	}
}

// ignoredAccountIDs resolves which accounts a whole-portfolio report
// excludes, matching rules case-insensitively against account id/name,
// connection id/name, and tag list.
func (s *Service) ignoredAccountIDs(ctx context.Context, accounts []domain.Account, rules IgnoreRules) (map[string]bool, error) {
	ignored := map[string]bool{}
	if rules.empty() {
		return ignored, nil
	}

	ignoreAccounts := normalizedSet(rules.Accounts)
	ignoreConnectionsRaw := normalizedSet(rules.Connections)
	ignoreTags := normalizedSet(rules.Tags)

	ignoreConnections := map[string]bool{}
	for k := range ignoreConnectionsRaw {
		ignoreConnections[k] = true
	}
	if len(ignoreConnectionsRaw) > 0 {
		connections, err := s.accounts.ListConnections(ctx)
		if err != nil {
			return nil, err
		}
		for _, conn := range connections {
			id := strings.ToLower(conn.ID)
			name := strings.ToLower(conn.Name)
			if ignoreConnectionsRaw[id] || ignoreConnectionsRaw[name] {
				ignoreConnections[id] = true
			}
		}
	}

	for _, account := range accounts {
		id := strings.ToLower(account.ID)
		name := strings.ToLower(account.Name)
		connectionID := strings.ToLower(account.ConnectionID)

		hasIgnoredTag := false
		for _, tag := range account.Tags {
			if ignoreTags[strings.ToLower(strings.TrimSpace(tag))] {
				hasIgnoredTag = true
				break
			}
		}

		if ignoreAccounts[id] || ignoreAccounts[name] || ignoreConnections[connectionID] || hasIgnoredTag {
			ignored[account.ID] = true
		}
	}

	return ignored, nil
}

func normalizedSet(values []string) map[string]bool {
	out := map[string]bool{}
	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed != "" {
			out[trimmed] = true
		}
	}
	return out
}

// findAccount looks up an account by id or case-insensitive name.
func findAccount(ctx context.Context, provider domain.AccountProvider, idOrName string) (*domain.Account, error) {
	accounts, err := provider.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == idOrName || strings.EqualFold(accounts[i].Name, idOrName) {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// findConnection looks up a connection by id or case-insensitive name.
func findConnection(ctx context.Context, provider domain.AccountProvider, idOrName string) (*domain.Connection, error) {
	connections, err := provider.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range connections {
		if connections[i].ID == idOrName || strings.EqualFold(connections[i].Name, idOrName) {
			return &connections[i], nil
		}
	}
	return nil, nil
}
