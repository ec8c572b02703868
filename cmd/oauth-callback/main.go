package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	callback "github.com/goeven/oauth-callback"
)

const (
	pollInterval    = time.Second
	shutdownTimeout = 5 * time.Second
)

// Flow:
//
// 1. GET /auth -> redirect to the provider's auth url -> user logs in -> provider redirects to "/auth" w/ code
// 2. GET /auth?code=... -> exchange code for a token at the provider's token endpoint -> store it as the last credential
// 3. this binary polls the last credential and reports it once it arrives
func main() {
	cfg, err := callback.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	listener, err := callback.NewListener(cfg, nil)
	if err != nil {
		log.WithError(err).Fatal("Failed to create listener")
	}

	if err := listener.Start(); err != nil {
		log.Fatalf("Failed to start http server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log.Infof("Open %s in a browser to authenticate", listener.AuthURL())

	if cred := waitForCredential(ctx, listener); cred != nil {
		log.WithFields(log.Fields{
			"token_type": cred.TokenType,
			"expiry":     cred.Expiry,
			"email":      cred.Email(),
		}).Info("Obtained credential")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := listener.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
		listener.Close()
		os.Exit(1)
	}
}

func waitForCredential(ctx context.Context, listener *callback.Listener) *callback.Credential {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if cred := listener.LastCredential(); cred != nil {
			return cred
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
