package callback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// CallbackPath is the route the provider redirects back to.
const CallbackPath = "/auth"

// Listener is a local HTTP endpoint that drives the authorization code flow
// and keeps the most recent credential it obtained.
type Listener struct {
	port    int
	address string

	clientID string
	authURL  string

	exchanger Exchanger
	router    *httprouter.Router
	server    *http.Server

	lastCredential atomic.Pointer[Credential]
	counter        atomic.Uint64
}

// NewListener creates a Listener. When exchanger is nil the code exchange
// goes to cfg.OAuth.TokenURL.
func NewListener(cfg Config, exchanger Exchanger) (*Listener, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if exchanger == nil {
		exchanger = NewExchanger(cfg.OAuth, nil)
	}

	l := &Listener{
		port:      cfg.Port,
		address:   "http://localhost:" + strconv.Itoa(cfg.Port),
		clientID:  cfg.OAuth.ClientID,
		authURL:   cfg.OAuth.AuthURL,
		exchanger: exchanger,
		router:    httprouter.New(),
	}
	l.router.GET(CallbackPath, l.handleAuth)
	l.router.POST(CallbackPath, l.handleAuth)
	l.server = &http.Server{
		Handler:           l.router,
		ReadHeaderTimeout: time.Minute,
	}

	return l, nil
}

// Port returns the port the listener binds to.
func (l *Listener) Port() int {
	return l.port
}

// Address returns the base address, e.g. "http://localhost:8080".
func (l *Listener) Address() string {
	return l.address
}

// AuthURL is the URL a user opens in a browser to start the flow.
func (l *Listener) AuthURL() string {
	return l.address + CallbackPath
}

// LastCredential returns the credential of the last successful exchange,
// or nil if none has succeeded yet.
func (l *Listener) LastCredential() *Credential {
	return l.lastCredential.Load()
}

func (l *Listener) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	l.router.ServeHTTP(rw, r)
}

// Start binds the configured port and serves in the background.
// A bind failure is returned to the caller.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", l.port))
	if err != nil {
		return trace.ConvertSystemError(err)
	}

	log.Infof("Listening on %s", l.address)

	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server terminated unexpectedly")
		}
	}()

	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (l *Listener) Shutdown(ctx context.Context) error {
	return trace.Wrap(l.server.Shutdown(ctx))
}

// Close stops the listener immediately.
func (l *Listener) Close() error {
	return trace.Wrap(l.server.Close())
}
