package cli

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/config"
	"skillyhead-service/internal/jobs"
	"skillyhead-service/internal/logging"
)

// NewExpireContractsCmd runs the contract expiry job once, for cron setups
// that do not keep a server running.
func NewExpireContractsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-contracts",
		Short: "Deactivate clients whose contract has ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			lg, err := logging.Init(cfg.Log.Level, cfg.Log.Env, cfg.Log.File)
			if err != nil {
				return err
			}
			defer lg.Closer()

			ctx := cmd.Context()
			be, err := openBackend(ctx, cfg, lg.Base)
			if err != nil {
				return err
			}
			defer be.Close()

			core := app.New(be.repos, lg.Base)
			runner := jobs.New(ctx, lg.Base)
			err = runner.Run("expire_contracts", jobs.ExpireContracts(core.Tenants, time.Now, lg.Base))
			if err == nil {
				lg.Base.Info("contract expiry finished", zap.String("storage", cfg.Storage.Driver))
			}
			return err
		},
	}
}
