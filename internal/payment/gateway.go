package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"laundryspot-backend/config"
	"laundryspot-backend/internal/apperr"
)

// ChargeRequest describes a single authorization attempt against the gateway.
type ChargeRequest struct {
	JobID            uint64
	AmountCents      int64
	PaymentMethodRef string
	// IdempotencyKey is derived deterministically from the job, so a retried
	// request can never double-charge.
	IdempotencyKey string
}

// Authorization is the gateway's reference for a successful charge.
type Authorization struct {
	Reference string
}

// Gateway is the payment gateway contract. Implementations must bound every
// call with a timeout and report expiry as KindGatewayTimeout.
type Gateway interface {
	AuthorizeCharge(ctx context.Context, req ChargeRequest) (*Authorization, error)
	CreateConnectedAccount(ctx context.Context, email string) (string, error)
	AccountOnboardingLink(ctx context.Context, accountID string) (string, error)
	AccountPayoutsEnabled(ctx context.Context, accountID string) (bool, error)
}

// StripeGateway implements Gateway against the Stripe API. Washer payout
// accounts are Connect express accounts with the transfers capability.
type StripeGateway struct {
	sc  *client.API
	cfg config.StripeConfig
}

// NewStripeGateway builds a gateway with its own API client; nothing is
// stored in package-level state.
func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &StripeGateway{sc: sc, cfg: cfg}
}

// AuthorizeCharge creates and confirms a PaymentIntent for the job amount.
func (g *StripeGateway) AuthorizeCharge(ctx context.Context, req ChargeRequest) (*Authorization, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(fmt.Sprintf("Laundry job #%d", req.JobID)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err, "authorize charge")
	}
	return &Authorization{Reference: pi.ID}, nil
}

// CreateConnectedAccount creates an express account able to request transfers.
func (g *StripeGateway) CreateConnectedAccount(ctx context.Context, email string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.AccountParams{
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Email:        stripe.String(email),
		BusinessType: stripe.String(string(stripe.AccountBusinessTypeIndividual)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	params.Context = ctx

	acct, err := g.sc.Accounts.New(params)
	if err != nil {
		return "", classify(err, "create connected account")
	}
	return acct.ID, nil
}

// AccountOnboardingLink returns a one-time URL where the washer completes
// onboarding at the gateway.
func (g *StripeGateway) AccountOnboardingLink(ctx context.Context, accountID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(g.cfg.OnboardingRefreshURL),
		ReturnURL:  stripe.String(g.cfg.OnboardingReturnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx

	link, err := g.sc.AccountLinks.New(params)
	if err != nil {
		return "", classify(err, "create onboarding link")
	}
	return link.URL, nil
}

// AccountPayoutsEnabled reports whether the gateway confirms the account can
// receive transfers.
func (g *StripeGateway) AccountPayoutsEnabled(ctx context.Context, accountID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := g.sc.Accounts.GetByID(accountID, params)
	if err != nil {
		return false, classify(err, "fetch account")
	}
	return acct.PayoutsEnabled, nil
}

// classify maps transport and gateway failures onto the error taxonomy.
func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindGatewayTimeout, err, "payment gateway timed out during %s", op)
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return apperr.Wrap(apperr.KindPaymentFailed, err, "%s: %s", op, stripeErr.Msg)
	}
	return apperr.Wrap(apperr.KindPaymentFailed, err, "%s failed", op)
}
