package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned while a breaker is open or a half-open probe is
// already in flight. The caller fails fast without touching the network.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerPolicy configures one circuit breaker.
type BreakerPolicy struct {
	// ErrorThresholdPct trips the breaker once this share of windowed calls
	// has failed.
	ErrorThresholdPct int
	// ResetTimeout is how long the breaker stays open before allowing a
	// single half-open probe.
	ResetTimeout time.Duration
	// Window is the rolling interval over which failures are counted.
	Window time.Duration
	// MinRequests is a volume floor: the ratio is not evaluated until the
	// window has seen this many calls. Zero means no floor, so even a
	// single failed call trips the breaker.
	MinRequests uint32
}

func newCircuitBreaker(name string, policy BreakerPolicy, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	threshold := float64(policy.ErrorThresholdPct) / 100
	window := policy.Window
	if window <= 0 {
		window = 10 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one half-open probe
		Interval:    window,
		Timeout:     policy.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}

// GuardedGateway wraps a Gateway so that each upstream operation runs behind
// its own breaker. Construct it once at startup and inject it; the breakers
// carry state for the lifetime of the process.
type GuardedGateway struct {
	gateway         *Gateway
	identityBreaker *gobreaker.CircuitBreaker
	activityBreaker *gobreaker.CircuitBreaker
}

func NewGuardedGateway(gateway *Gateway, policy BreakerPolicy, logger zerolog.Logger) *GuardedGateway {
	return &GuardedGateway{
		gateway:         gateway,
		identityBreaker: newCircuitBreaker("identity", policy, logger),
		activityBreaker: newCircuitBreaker("activity", policy, logger),
	}
}

func (g *GuardedGateway) FetchIdentity(ctx context.Context, patientID, token string) (*IdentityData, error) {
	result, err := g.identityBreaker.Execute(func() (interface{}, error) {
		return g.gateway.FetchIdentity(ctx, patientID, token)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return result.(*IdentityData), nil
}

func (g *GuardedGateway) FetchActivity(ctx context.Context, patientID, token string) ([]ActivityRecord, error) {
	result, err := g.activityBreaker.Execute(func() (interface{}, error) {
		return g.gateway.FetchActivity(ctx, patientID, token)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return result.([]ActivityRecord), nil
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}
