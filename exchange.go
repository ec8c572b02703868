package callback

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gravitational/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const tracerName = "github.com/goeven/oauth-callback"

// Exchanger trades a one-time authorization code for a Credential.
// redirectURI must be byte-identical to the one sent to the authorization
// endpoint, otherwise the provider rejects the exchange.
type Exchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (*Credential, error)
}

// OAuth2Exchanger exchanges codes against the configured token endpoint.
type OAuth2Exchanger struct {
	conf       OAuthConfig
	httpClient *http.Client
}

// NewExchanger creates an exchanger. httpClient may be nil, in which case
// http.DefaultClient is used.
func NewExchanger(conf OAuthConfig, httpClient *http.Client) *OAuth2Exchanger {
	return &OAuth2Exchanger{
		conf:       conf,
		httpClient: httpClient,
	}
}

func (e *OAuth2Exchanger) Exchange(ctx context.Context, code, redirectURI string) (*Credential, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "oauth.exchange",
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("oauth.client_id", e.conf.ClientID),
			attribute.String("oauth.grant_type", "authorization_code"),
			attribute.String("oauth.redirect_uri", redirectURI),
			attribute.Int("oauth.code.length", len(code)),
		),
	)
	defer span.End()

	cred, err := e.exchange(ctx, code, redirectURI)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "code exchange failed")
		return nil, trace.Wrap(err)
	}

	span.SetAttributes(attribute.String("oauth.token_type", cred.TokenType))
	span.SetStatus(codes.Ok, "")
	return cred, nil
}

func (e *OAuth2Exchanger) exchange(ctx context.Context, code, redirectURI string) (*Credential, error) {
	if e.conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.conf.Timeout)
		defer cancel()
	}
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	token, err := e.oauthConfig(redirectURI).Exchange(ctx, code)

	var (
		retrieveErr *oauth2.RetrieveError
		urlErr      *url.Error
	)
	switch {
	case errors.As(err, &retrieveErr):
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return nil, trace.AccessDenied("token endpoint rejected the code exchange (status %d, error %q)", status, retrieveErr.ErrorCode)
	case errors.As(err, &urlErr):
		return nil, trace.ConnectionProblem(err, "failed to reach the token endpoint")
	case err != nil:
		return nil, trace.BadParameter("invalid token response: %v", err)
	}

	cred, err := newCredential(token)
	return cred, trace.Wrap(err)
}

func (e *OAuth2Exchanger) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.conf.ClientID,
		ClientSecret: e.conf.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   e.conf.AuthURL,
			TokenURL:  e.conf.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
	}
}
