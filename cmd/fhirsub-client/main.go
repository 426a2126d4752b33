// Command fhirsub-client listens for subscription notifications.
//
// Usage:
//
//	fhirsub-client [flags]
//
// Without --url the first server found over mDNS is used.
//
// Examples:
//
//	# Print notifications of one subscription
//	fhirsub-client --url ws://localhost:8080/ws --token $TOKEN --subscription Subscription/s1
//
//	# Interactive console
//	fhirsub-client --interactive --token $TOKEN
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/openclinic/fhirsub/cmd/fhirsub-client/interactive"
	"github.com/openclinic/fhirsub/pkg/client"
	"github.com/openclinic/fhirsub/pkg/connection"
	"github.com/openclinic/fhirsub/pkg/discovery"
)

// TokenEnvVar is read when --token is not given.
const TokenEnvVar = "FHIRSUB_TOKEN"

var (
	serverURL    = flag.String("url", "", "Server websocket URL (default: discover over mDNS)")
	token        = flag.String("token", "", "Bearer token (default $"+TokenEnvVar+")")
	subscription = flag.String("subscription", "", "Subscription to bind")
	instance     = flag.String("instance", "", "mDNS instance name to connect to")
	iface        = flag.String("interface", "", "Network interface for mDNS")
	interactiveM = flag.BoolP("interactive", "i", false, "Start the interactive console")
	logLevel     = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}

	if *token == "" {
		*token = os.Getenv(TokenEnvVar)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{
		BrowseTimeout: discovery.BrowseTimeout,
		Interface:     *iface,
	})
	defer browser.Stop()

	if *interactiveM {
		console, err := interactive.New(interactive.Config{Token: *token, Browser: browser})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		console.SetLogger(slog.New(slog.NewTextHandler(console.Stdout(), &slog.HandlerOptions{Level: level})))
		console.Run(ctx, cancel)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if err := listen(ctx, browser, logger); err != nil {
		logger.Error("client failed", "error", err)
		os.Exit(1)
	}
}

func listen(ctx context.Context, browser discovery.Browser, logger *slog.Logger) error {
	url := *serverURL
	if url == "" {
		var filter discovery.FilterFunc
		if *instance != "" {
			filter = discovery.FilterByInstance(*instance)
		}
		findCtx, cancel := context.WithTimeout(ctx, discovery.BrowseTimeout)
		svc, err := discovery.Find(findCtx, browser, filter)
		cancel()
		if err != nil {
			return fmt.Errorf("discover server: %w", err)
		}
		url = svc.URL()
		logger.Info("discovered server", "instance", svc.InstanceName, "url", url)
	}

	c := client.New(client.Config{
		URL:            url,
		Token:          *token,
		SubscriptionID: *subscription,
		Logger:         logger,
		OnStateChange: func(_, next connection.State) {
			logger.Info("connection state", "state", next.String())
		},
	})
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case n, ok := <-c.Notifications():
			if !ok {
				return c.Err()
			}
			printNotification(n)
		case <-ctx.Done():
			return nil
		}
	}
}

func printNotification(n client.Notification) {
	ts := n.Received.Format(time.RFC3339)
	switch n.Kind {
	case client.KindPayload:
		fmt.Printf("%s %s %s\n", ts, n.SubscriptionID, n.Body)
	default:
		fmt.Printf("%s %s %s\n", ts, n.SubscriptionID, n.Kind)
	}
}
