package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/support-intel/internal/config"
	"github.com/wolfman30/support-intel/internal/notify"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// BuildEmailSender selects the e-mail provider. awsCfg is only needed for SES.
// Without a usable provider the stub sender is returned.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; using stub email sender")
	case "ses":
		if awsCfg != nil {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail:        cfg.SESFromEmail,
				FromName:         cfg.SendGridFromName,
				ConfigurationSet: cfg.SESConfigurationSet,
			}, logger)
		}
		logger.Warn("ses selected but AWS config unavailable; using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildNotifier fans out to Slack and e-mail and wraps the result in retries.
// Without any delivery channel it falls back to the logging stub.
func BuildNotifier(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.Notifier {
	if logger == nil {
		logger = logging.Default()
	}

	var targets []notify.Notifier
	if slack := notify.NewSlackNotifier(cfg.SlackWebhookURL, nil, logger); slack != nil {
		targets = append(targets, slack)
	}
	if len(cfg.EscalationEmailTo) > 0 {
		sender := BuildEmailSender(cfg, awsCfg, logger)
		if email := notify.NewEmailNotifier(sender, cfg.EscalationEmailTo, logger); email != nil {
			targets = append(targets, email)
		}
	}
	if len(targets) == 0 {
		logger.Warn("no escalation notifier configured; escalations are only logged")
		return notify.NewStubNotifier(logger)
	}

	return notify.NewRetryNotifier(notify.NewMultiNotifier(targets...), logger).
		WithMaxAttempts(cfg.NotifyMaxAttempts).
		WithBaseDelay(cfg.NotifyBaseDelay).
		WithAttemptTimeout(cfg.NotifyTimeout)
}
