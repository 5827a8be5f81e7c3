package app

import (
	"context"
	"time"
)

// RetryPolicy borne les relances d'une opération. Ce qui est relançable est
// décidé par l'appelant (Recover), pas par la politique.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy: une seule relance, sans délai.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1}
}

// Recover est appelé après un échec. Il renvoie retry=false pour abandonner
// (l'erreur d'origine est alors renvoyée) ou une erreur qui remplace celle d'origine.
type Recover func(ctx context.Context, err error) (retry bool, rerr error)

func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, onErr Recover) error {
	err := op(ctx)
	for attempt := 0; err != nil && attempt < p.MaxRetries; attempt++ {
		if onErr == nil {
			return err
		}
		retry, rerr := onErr(ctx, err)
		if rerr != nil {
			return rerr
		}
		if !retry {
			return err
		}
		if p.Delay > 0 {
			if serr := sleepContext(ctx, p.Delay); serr != nil {
				return serr
			}
		}
		err = op(ctx)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
