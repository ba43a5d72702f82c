package cli

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/config"
	"skillyhead-service/internal/domain"
)

// bootstrapAdmin provisions the configured admin account if it is missing.
func bootstrapAdmin(ctx context.Context, core *app.Core, cfg config.Config, log *zap.Logger) error {
	if cfg.Bootstrap.AdminEmail == "" {
		return nil
	}
	u, err := core.Identity.ProvisionUser(ctx, systemIdentity, app.NewUser{
		Email:    cfg.Bootstrap.AdminEmail,
		Password: cfg.Bootstrap.AdminPassword,
		Role:     domain.RoleAdmin,
	})
	switch {
	case err == nil:
		log.Info("bootstrap admin created", zap.String("user_id", u.ID))
		return nil
	case errors.Is(err, domain.ErrValidation) && emailTaken(err):
		log.Debug("bootstrap admin already present")
		return nil
	}
	return err
}

func emailTaken(err error) bool {
	for _, f := range domain.Fields(err) {
		if f.Field == "email" {
			return true
		}
	}
	return false
}
