package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ContractExpirer deactivates clients whose contract end date has passed.
type ContractExpirer interface {
	ExpireContracts(ctx context.Context, now time.Time) (int, error)
}

// ExpireContracts adapts a ContractExpirer to a Job.
func ExpireContracts(e ContractExpirer, now func() time.Time, log *zap.Logger) Job {
	return func(ctx context.Context) error {
		n, err := e.ExpireContracts(ctx, now())
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("contracts expired", zap.Int("clients", n))
		}
		return nil
	}
}
