package house

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
)

var errStillPending = errors.New("house: play still pending")

// pendingPlay is the Handle returned by Client.Play.
type pendingPlay struct {
	client *Client
	id     string
}

func (p *pendingPlay) ID() string { return p.id }

// Result polls the gateway until the play settles or fails. Polling backs off
// exponentially from PollInterval and gives up after SettlementTimeout.
func (p *pendingPlay) Result(ctx context.Context) (Settlement, error) {
	cfg := p.client.config

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.PollInterval
	b.MaxInterval = cfg.MaxRetryDelay
	b.Multiplier = 1.5

	poll := func() (Settlement, error) {
		play, err := p.client.fetchPlay(ctx, p.id)
		if err != nil {
			if IsRetryable(err) {
				return Settlement{}, err
			}
			return Settlement{}, backoff.Permanent(err)
		}

		switch play.Status {
		case PlaySettled:
			if play.ID == "" {
				play.ID = p.id
			}
			return play.settlement(), nil
		case PlayFailed:
			return Settlement{}, backoff.Permanent(&SettlementError{PlayID: p.id, Reason: play.Error})
		case PlayPending, "":
			return Settlement{}, errStillPending
		default:
			return Settlement{}, backoff.Permanent(fmt.Errorf("house: play %s has unknown status %q", p.id, play.Status))
		}
	}

	s, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(cfg.SettlementTimeout),
	)
	if err != nil {
		if errors.Is(err, errStillPending) {
			return Settlement{}, fmt.Errorf("%w: play %s", ErrSettlementTimeout, p.id)
		}
		return Settlement{}, err
	}
	return s, nil
}
