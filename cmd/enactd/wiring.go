package main

import (
	"context"
	"fmt"
	"regexp"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/rs/zerolog/log"

	"github.com/adriacb/enact/internal/audit"
	"github.com/adriacb/enact/internal/config"
)

// compileHighRiskFunctions compiles the configured high-risk function-name
// patterns. A pattern that fails to compile is logged and skipped rather
// than failing startup, since the approval workflow degrades gracefully
// to "no function-level match" without it.
func compileHighRiskFunctions(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warn().Err(err).Str("pattern", p).Msg("skipping invalid high_risk_functions pattern")
			continue
		}
		out = append(out, re)
	}
	return out
}

// buildAuditSinks constructs the enabled file, HTTP, syslog, and
// CloudWatch sinks from configuration (the Postgres and telemetry sinks
// are appended by runServer) and returns a close function that releases
// any sink holding a live connection (syslog, CloudWatch). Sink
// construction failures are fatal:
// a misconfigured sink the operator believes is active must not be
// silently dropped.
func buildAuditSinks(ctx context.Context, cfg *config.Config) ([]audit.Sink, func(), error) {
	var sinks []audit.Sink
	var closers []func()

	if cfg.Audit.File.Enabled {
		s, err := audit.NewFileSink(cfg.Audit.File.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("file sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Audit.HTTP.Enabled {
		sinks = append(sinks, audit.NewHTTPSink(cfg.Audit.HTTP.URL, nil, cfg.Audit.HTTP.Timeout))
	}

	if cfg.Audit.Syslog.Enabled {
		s, err := audit.NewSyslogSink(cfg.Audit.Syslog.Network, cfg.Audit.Syslog.Address, audit.Facility(cfg.Audit.Syslog.Facility))
		if err != nil {
			return nil, nil, fmt.Errorf("syslog sink: %w", err)
		}
		sinks = append(sinks, s)
		closers = append(closers, func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("syslog sink: close failed")
			}
		})
	}

	if cfg.Audit.CloudWatch.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Audit.CloudWatch.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("cloudwatch sink: loading AWS config: %w", err)
		}
		client := cloudwatchlogs.NewFromConfig(awsCfg)
		s := audit.NewCloudWatchSink(client, cfg.Audit.CloudWatch.LogGroup, cfg.Audit.CloudWatch.LogStream,
			cfg.Audit.CloudWatch.BatchMax, cfg.Audit.CloudWatch.FlushPeriod)
		sinks = append(sinks, s)
		closers = append(closers, func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("cloudwatch sink: close failed")
			}
		})
	}

	log.Info().Int("sinks", len(sinks)).Msg("audit sinks configured")

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
