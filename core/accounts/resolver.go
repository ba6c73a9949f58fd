package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperterse/codemode/core/logger"
	apperrors "github.com/hyperterse/codemode/core/shared/errors"
	"github.com/hyperterse/codemode/core/upstream"
)

// maxCandidates bounds how many accounts an ambiguity message lists.
const maxCandidates = 5

// Account is a tenant visible to a credential.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lister fetches envelopes from the remote API.
type Lister interface {
	Get(ctx context.Context, path, credential string) (*upstream.Success, error)
	APIName() string
}

// Resolver picks the single account a credential belongs to. It never
// caches: every call asks upstream.
type Resolver struct {
	client Lister
}

func NewResolver(client Lister) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the id of the only account visible to credential.
func (r *Resolver) Resolve(ctx context.Context, credential string) (string, error) {
	accounts, err := r.List(ctx, credential)
	if err != nil {
		return "", err
	}

	switch len(accounts) {
	case 0:
		return "", apperrors.NewAppError(apperrors.ErrCodeNoAccountFound, "No accounts found for this token", nil)
	case 1:
		logger.New("accounts").Debugf("Resolved account %s", accounts[0].ID)
		return accounts[0].ID, nil
	default:
		return "", apperrors.NewAppError(apperrors.ErrCodeAmbiguousAccount, ambiguousMessage(accounts), nil)
	}
}

// List returns every account visible to credential.
func (r *Resolver) List(ctx context.Context, credential string) ([]Account, error) {
	result, err := r.client.Get(ctx, "/accounts", credential)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if len(result.Result) > 0 && string(result.Result) != "null" {
		if err := json.Unmarshal(result.Result, &accounts); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrCodeUpstream,
				fmt.Sprintf("%s API returned an unexpected accounts list", r.client.APIName()), err)
		}
	}
	return accounts, nil
}

func ambiguousMessage(accounts []Account) string {
	shown := accounts
	if len(shown) > maxCandidates {
		shown = shown[:maxCandidates]
	}
	candidates := make([]string, 0, len(shown))
	for _, account := range shown {
		candidates = append(candidates, fmt.Sprintf("%s (%s)", account.ID, account.Name))
	}
	return "Multiple accounts found. Please specify account_id. Available: " + strings.Join(candidates, ", ")
}
