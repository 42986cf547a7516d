package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"cbd-eventstream/internal/cbdauth"
	"cbd-eventstream/internal/cbdstream"
	"cbd-eventstream/internal/config"
	"cbd-eventstream/internal/events"
	"cbd-eventstream/internal/logging"
	"cbd-eventstream/internal/metrics"
	"cbd-eventstream/internal/monitor"
	"cbd-eventstream/internal/runstatus"
)

var BuildVersion = "dev"

const requestTimeout = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	opts, err := config.ParseOptions(args)
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			return 0
		}
		// go-flags has already printed parse errors.
		if flagErr == nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return 2
	}
	if opts.Version {
		fmt.Println("cbd-eventstream", BuildVersion)
		return 0
	}
	if err := config.ValidateRequired(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	endpoints, err := config.BuildEndpoints(opts.Dashboard, opts.Port)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid dashboard address:", err)
		return 2
	}

	logger := logging.New(opts.Debug)
	defer func() {
		_ = logger.Close()
	}()
	if opts.FileLogging() {
		if err := logger.EnableFilePersistence(opts.LogDir, 0); err != nil {
			logger.Warn("file logging disabled", logging.Field("error", err))
		}
	}

	if !opts.NoLock && opts.ClientID != "" {
		lock, lockErr := acquireInstanceLock(opts.Dashboard + "-" + opts.ClientID)
		var busy *instanceBusyError
		if errors.As(lockErr, &busy) {
			fmt.Fprintln(os.Stderr, busy.Error()+".")
			return 1
		}
		if lockErr != nil {
			fmt.Fprintln(os.Stderr, "failed to initialize single-instance lock:", lockErr)
			return 2
		}
		defer func() {
			_ = lock.Release()
		}()
	}

	issuer := cbdauth.NewIssuer(cbdauth.IssuerConfig{
		KeyID:      opts.KeyID,
		Secret:     opts.Secret,
		ClientID:   opts.ClientID,
		AppName:    opts.AppName,
		AppVersion: opts.AppVersion,
		Lifetime:   opts.TokenLifetime(),
	})

	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	if _, statErr := os.Stat(opts.EnvFile); statErr == nil {
		go func() {
			watchErr := config.WatchCredentials(ctx, opts.EnvFile, logger, func(creds config.Credentials) {
				issuer.SetCredentials(creds.KeyID, creds.Secret)
			})
			if watchErr != nil {
				logger.Warn("credentials watch stopped", logging.Field("error", watchErr))
			}
		}()
	}

	promMetrics := metrics.New()
	if opts.MetricsAddr != "" {
		go func() {
			if serveErr := promMetrics.Serve(ctx, opts.MetricsAddr, logger); serveErr != nil {
				logger.Warn("metrics server stopped", logging.Field("error", serveErr))
			}
		}()
	}

	types := opts.EventTypesOrDefault()
	printer := events.NewPrinter(os.Stdout)
	mon := monitor.New(monitor.Config{
		Tokens: issuer,
		Stream: cbdstream.Client{
			HTTP:        newHTTPClient(opts.Insecure),
			Logger:      logger.With(logging.Field("component", "stream")),
			ReadTimeout: opts.ReadTimeout,
			ForceHTTP1:  opts.HTTP1,
		},
		StreamURL:        endpoints.EventStreamURL(types, opts.Filtered()),
		SubscriptionURL:  endpoints.SubscriptionURL,
		NetworkIDs:       opts.NetIDs,
		TransportRetries: opts.TransportRetries,
		Sink:             printer,
		Recorder:         promMetrics,
		Status:           runstatus.NewTracker(),
		Logger:           logger.With(logging.Field("component", "monitor")),
	})

	logger.Info("starting event stream monitor",
		logging.Field("version", BuildVersion),
		logging.Field("dashboard", endpoints.BaseURL),
		logging.Field("types", types),
		logging.Field("network_ids", opts.NetIDs),
		logging.Field("token_lifetime", issuer.Lifetime().String()),
		logging.Field("verify_cert", !opts.Insecure),
	)
	runErr := mon.Run(ctx)
	logger.Info("event stream monitor stopped",
		logging.Field("client_id", issuer.ClientID()),
		logging.Field("state", runstatus.Key(mon.Status().Current())),
	)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		return 1
	}
	_ = printer.Farewell()
	return 0
}

func newHTTPClient(insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		// Self-signed Dashboard deployments.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Timeout: requestTimeout, Transport: transport}
}
