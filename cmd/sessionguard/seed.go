package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/accounts"
	"github.com/MrEthical07/sessionguard/dispatch"
)

type seedAccount struct {
	identifier string
	password   string
	mfa        bool
}

func parseSeed(raw string) (seedAccount, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return seedAccount{}, fmt.Errorf("invalid --seed %q: want identifier:password[:mfa]", raw)
	}
	acc := seedAccount{identifier: parts[0], password: parts[1]}
	if len(parts) == 3 {
		if parts[2] != "mfa" {
			return seedAccount{}, fmt.Errorf("invalid --seed %q: unknown flag %q", raw, parts[2])
		}
		acc.mfa = true
	}
	return acc, nil
}

func seedAccounts(dir *accounts.Directory, totp *accounts.TOTP, seeds []string, logger *slog.Logger) error {
	for _, raw := range seeds {
		acc, err := parseSeed(raw)
		if err != nil {
			return err
		}

		p := sessionguard.Principal{
			ID:          uuid.NewString(),
			DisplayName: acc.identifier,
			Roles:       []string{"member"},
		}
		if strings.Contains(acc.identifier, "@") {
			p.Email = acc.identifier
		}
		if err := dir.Add(acc.identifier, acc.password, p); err != nil {
			return fmt.Errorf("seed %s: %w", acc.identifier, err)
		}

		if acc.mfa {
			secret, encoded, err := totp.GenerateSecret()
			if err != nil {
				return err
			}
			if err := dir.EnableTOTP(p.ID, secret); err != nil {
				return err
			}
			logger.Info("sessionguard: seeded mfa account",
				"identifier", acc.identifier,
				"principal_id", p.ID,
				"provision_uri", totp.ProvisionURI(encoded, acc.identifier))
			continue
		}
		logger.Info("sessionguard: seeded account", "identifier", acc.identifier, "principal_id", p.ID)
	}
	return nil
}

// logTransport writes outbound mail to the log instead of delivering it.
func logTransport(logger *slog.Logger) dispatch.Transport {
	return dispatch.TransportFunc(func(_ context.Context, from, to, subject, html string) (string, error) {
		id := uuid.NewString()
		logger.Info("sessionguard: mail", "message_id", id, "from", from, "to", to, "subject", subject)
		logger.Debug("sessionguard: mail body", "message_id", id, "html", html)
		return id, nil
	})
}
