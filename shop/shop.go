// Package shop fetches the reward inventory and transaction history
// and drives the claim flow. Reward state is owned server-side; the
// client re-fetches after a claim rather than mutating locally.
package shop

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/edutrack-uz/portal-client/binding"
	"github.com/edutrack-uz/portal-client/cache"
	"github.com/edutrack-uz/portal-client/dashboard"
	"github.com/edutrack-uz/portal-client/transport"
)

// KeyShop is the cache key for the shop snapshot.
const KeyShop = "shop-data"

const (
	shopEndpoint  = "/api/shop/"
	claimEndpoint = "/api/claim-reward/"
)

// Reward is one redeemable item.
type Reward struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Cost        int    `json:"cost"`
	Claimed     bool   `json:"claimed"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
	RedeemURL   string `json:"redeem_url,omitempty"`
}

// Transaction is one coins/XP ledger row.
type Transaction struct {
	Datetime time.Time `json:"datetime"`
	Reason   string    `json:"reason"`
	XP       int       `json:"xp"`
	Coins    int       `json:"coins"`
	Negative bool      `json:"negative,omitempty"`
}

// ShopResponse is the /api/shop/ shape.
type ShopResponse struct {
	transport.Envelope
	Data struct {
		Rewards      []Reward      `json:"rewards"`
		Transactions []Transaction `json:"transactions"`
	} `json:"data"`
}

type claimResponse struct {
	transport.Envelope
}

// ClaimOutcome is what a claim call resolved to. A claim on an
// already-claimed reward never reaches the network; it resolves to the
// redemption link instead.
type ClaimOutcome struct {
	Message        string
	AlreadyClaimed bool
	RedeemURL      string
}

// Service owns the shop cache key and the claim flow.
type Service struct {
	shop      *binding.Poster[ShopResponse]
	claim     *binding.Poster[claimResponse]
	dashboard *dashboard.Service
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates the shop service. The dashboard service is needed
// because a claim changes the coin balance served by a different
// endpoint, and the two must be re-synced without a shared transaction.
func NewService(store *cache.Store, dash *dashboard.Service, options ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("[shop.NewService] cache is required")
	}
	if dash == nil {
		return nil, errors.New("[shop.NewService] dashboard service is required")
	}
	s := &Service{
		shop:      binding.NewPoster[ShopResponse](store, KeyShop, shopEndpoint),
		claim:     binding.NewPoster[claimResponse](store, "reward-claim", claimEndpoint),
		dashboard: dash,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Fetch loads the shop snapshot. Calling it again is the refetch.
func (s *Service) Fetch(ctx context.Context) (*ShopResponse, error) {
	return s.shop.Post(ctx, nil)
}

// State returns the current shop entry.
func (s *Service) State() binding.State[ShopResponse] {
	return s.shop.State()
}

// Subscribe observes shop writes.
func (s *Service) Subscribe(fn func(binding.State[ShopResponse])) func() {
	return s.shop.Subscribe(fn)
}

// Reward looks up a reward in the cached snapshot.
func (s *Service) Reward(id int64) (Reward, bool) {
	st := s.shop.State()
	if st.Data == nil {
		return Reward{}, false
	}
	for _, r := range st.Data.Data.Rewards {
		if r.ID == id {
			return r, true
		}
	}
	return Reward{}, false
}

// Claim redeems a reward. Affordability is checked against the cached
// dashboard balance before any network call; a balance exactly equal to
// the cost is affordable. On success both the shop and the dashboard
// are refetched to keep the two endpoints consistent.
func (s *Service) Claim(ctx context.Context, rewardID int64) (*ClaimOutcome, error) {
	reward, ok := s.Reward(rewardID)
	if !ok {
		return nil, transport.NewValidationError("unknown reward %d", rewardID)
	}
	if reward.Claimed {
		return &ClaimOutcome{AlreadyClaimed: true, RedeemURL: reward.RedeemURL}, nil
	}

	balance, ok := s.dashboard.Balance()
	if !ok {
		return nil, transport.NewValidationError("balance unknown, fetch the dashboard first")
	}
	if balance < reward.Cost {
		return nil, transport.NewValidationError("balance %d is below reward cost %d", balance, reward.Cost)
	}

	out, err := s.claim.Post(ctx, map[string]int64{"reward_id": rewardID})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("reward_id", rewardID).Msg("reward claimed")
	if _, err := s.Fetch(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("shop refetch after claim failed")
	}
	if _, err := s.dashboard.Fetch(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard refetch after claim failed")
	}
	return &ClaimOutcome{Message: out.Message}, nil
}
