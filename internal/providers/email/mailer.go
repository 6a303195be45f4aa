// Package email is the delivery collaborator for account mail. Actual
// transport lives outside this repository; the log mailer keeps development
// and tests self-contained.
package email

import (
	"context"

	"github.com/smallbiznis/taskora/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Mailer interface {
	SendPasswordReset(ctx context.Context, to, rawToken string) error
}

type logMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) Mailer {
	return &logMailer{log: log.Named("email")}
}

func (m *logMailer) SendPasswordReset(ctx context.Context, to, rawToken string) error {
	_ = ctx
	m.log.Info("password reset requested",
		zap.String("to", to),
		zap.Int("token_len", len(rawToken)),
	)
	return nil
}

// NewFromConfig picks the SMTP transport when one is configured and falls
// back to the log mailer otherwise.
func NewFromConfig(log *zap.Logger, cfg config.Config) Mailer {
	if cfg.SMTPHost != "" {
		return NewSMTPMailer(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			AppURL:   cfg.FrontendOrigin,
		})
	}
	return NewLogMailer(log)
}

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)
