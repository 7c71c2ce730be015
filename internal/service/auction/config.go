package auction

import (
	"time"

	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// TiebreakStrategy decides among equal top bids
type TiebreakStrategy string

const (
	// TiebreakResponseTime awards the fastest responder
	TiebreakResponseTime TiebreakStrategy = "response_time"
	// TiebreakRandom awards uniformly at random
	TiebreakRandom TiebreakStrategy = "random"
	// TiebreakPriority awards the best zone priority, falling back to
	// random when priorities also tie
	TiebreakPriority TiebreakStrategy = "priority"
)

// Config controls one auction run
type Config struct {
	// MaxParticipants caps how many buyers are pinged
	MaxParticipants int

	// Timeout bounds the whole bidding phase. A buyer's own ping
	// timeout still applies when it is shorter.
	Timeout time.Duration

	// RequireMinimumBid filters bids under MinimumBid out of winner
	// selection
	RequireMinimumBid bool
	MinimumBid        values.Money

	// AllowTiedBids accepts equal top bids and awards the earliest
	// responder instead of running the tiebreak strategy
	AllowTiedBids bool
	Tiebreak      TiebreakStrategy
}

// DefaultConfig returns the standard auction parameters
func DefaultConfig() Config {
	return Config{
		MaxParticipants:   10,
		Timeout:           5 * time.Second,
		RequireMinimumBid: true,
		MinimumBid:        values.MustNewMoney("10.00"),
		AllowTiedBids:     false,
		Tiebreak:          TiebreakResponseTime,
	}
}

func (c Config) minBidThreshold() *values.Money {
	if !c.RequireMinimumBid {
		return nil
	}
	m := c.MinimumBid
	return &m
}

// meetsFloor reports whether a bid amount survives the minimum-bid
// filter
func (c Config) meetsFloor(amount values.Money) bool {
	if !c.RequireMinimumBid {
		return true
	}
	return !amount.LessThan(c.MinimumBid)
}
