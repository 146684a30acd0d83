package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shineum/emailer-lite/internal/config"
	"github.com/shineum/emailer-lite/internal/provider"
	"github.com/shineum/emailer-lite/internal/provider/graph"
	"github.com/shineum/emailer-lite/internal/provider/ses"
	"github.com/shineum/emailer-lite/internal/provider/stdout"
	smtptls "github.com/shineum/emailer-lite/internal/tls"
)

// selectProvider chooses the delivery backend from the runtime options. It
// returns nil for SMTP, which the dispatcher builds from the sender settings.
func (a *app) selectProvider(ctx context.Context, rt *config.Runtime, logger *slog.Logger) (provider.Provider, error) {
	switch rt.Provider {
	case config.ProviderSMTP:
		return nil, nil

	case config.ProviderSES:
		if !rt.SESConfigured() {
			return nil, errors.New("SES provider selected but SES_REGION is not set")
		}
		logger.Info("using AWS SES provider", "region", rt.SES.Region)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          rt.SES.Region,
			AccessKeyID:     rt.SES.AccessKeyID,
			SecretAccessKey: rt.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.ProviderGraph:
		if !rt.GraphConfigured() {
			return nil, errors.New("Graph provider selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID and GRAPH_CLIENT_SECRET are required")
		}
		logger.Info("using Microsoft Graph provider", "tenant", rt.Graph.TenantID)
		return graph.New(graph.GraphProviderConfig{
			TenantID:     rt.Graph.TenantID,
			ClientID:     rt.Graph.ClientID,
			ClientSecret: rt.Graph.ClientSecret,
		}), nil

	case config.ProviderStdout:
		logger.Debug("using stdout provider")
		return stdout.NewWithWriter(a.stdout), nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalidRuntime, rt.Provider)
	}
}

// clientTLSConfig builds the SMTP client TLS configuration.
func (a *app) clientTLSConfig(rt *config.Runtime) (*tls.Config, error) {
	if rt.TLS.InsecureSkipVerify {
		slog.Warn("TLS certificate verification disabled")
	}
	cfg, err := smtptls.ClientConfig(a.fs, rt.TLS.CAFile, rt.TLS.InsecureSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("failed to set up TLS: %w", err)
	}
	return cfg, nil
}
