package callback

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

const scopeParam = "openid%20email%20https%3A%2F%2Fwww.googleapis.com%2Fauth%2Fuserinfo.email"

type requestKind int

const (
	// kindInitialVisit is a GET without a code: send the browser to the provider.
	kindInitialVisit requestKind = iota
	// kindCallbackWithCode is the provider redirecting back with a code.
	kindCallbackWithCode
	// kindPostProbe is a POST to the redirect URI. The provider requires
	// it to be answered with a 200 or it refuses the token request.
	kindPostProbe
)

func (k requestKind) String() string {
	switch k {
	case kindPostProbe:
		return "post_probe"
	case kindCallbackWithCode:
		return "callback"
	default:
		return "initial_visit"
	}
}

func classifyRequest(r *http.Request) requestKind {
	if r.Method == http.MethodPost {
		return kindPostProbe
	}
	if r.URL.Query().Has("code") {
		return kindCallbackWithCode
	}
	return kindInitialVisit
}

var (
	successPage = template.Must(template.New("success").Parse(
		"<b>Success</b>, authenticated with the server.\nYou may close this window now."))
	failurePage = template.Must(template.New("failure").Parse(
		`<b>Error</b>, unable to authenticate with the server. <a href="{{.}}">Click here to try again.</a>`))
)

func (l *Listener) handleAuth(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	kind := classifyRequest(r)
	log := log.WithFields(log.Fields{
		"request_id": l.counter.Add(1),
		"kind":       kind.String(),
	})

	switch kind {
	case kindPostProbe:
		l.handlePostProbe(rw)
	case kindCallbackWithCode:
		l.handleCallback(rw, r, log)
	default:
		l.handleInitialVisit(rw, log)
	}
}

func (l *Listener) handlePostProbe(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "text/plain")
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("Post Received"))
}

func (l *Listener) handleCallback(rw http.ResponseWriter, r *http.Request, log log.FieldLogger) {
	code := r.URL.Query().Get("code")

	rw.Header().Set("Content-Type", "text/html")

	cred, err := l.exchanger.Exchange(r.Context(), code, l.redirectURI())
	if err != nil {
		log.WithError(err).Warn("Failed to exchange authorization code")
		rw.WriteHeader(http.StatusOK)
		if err := failurePage.Execute(rw, l.redirectURI()); err != nil {
			log.WithError(err).Error("Failed to render failure page")
		}
		return
	}

	l.lastCredential.Store(cred)
	log.WithField("token_type", cred.TokenType).Info("Authenticated with the provider")

	rw.WriteHeader(http.StatusOK)
	if err := successPage.Execute(rw, nil); err != nil {
		log.WithError(err).Error("Failed to render success page")
	}
}

func (l *Listener) handleInitialVisit(rw http.ResponseWriter, log log.FieldLogger) {
	rw.Header().Set("Location", l.authCodeURL(log))
	rw.WriteHeader(http.StatusFound)
}

// redirectURI is recomputed on every use so the authorization step and the
// exchange step always present the same value.
func (l *Listener) redirectURI() string {
	return l.address + CallbackPath
}

func (l *Listener) authCodeURL(log log.FieldLogger) string {
	var b strings.Builder
	b.WriteString(l.authURL)
	if strings.Contains(l.authURL, "?") {
		b.WriteByte('&')
	} else {
		b.WriteByte('?')
	}
	b.WriteString("client_id=")
	b.WriteString(l.clientID)
	b.WriteString("&redirect_uri=")
	b.WriteString(encodeQueryValue(l.redirectURI(), log))
	b.WriteString("&response_type=code")
	b.WriteString("&scope=")
	b.WriteString(scopeParam)
	return b.String()
}

// encodeQueryValue form-encodes v. Values that are not valid UTF-8 encode
// to an empty string.
func encodeQueryValue(v string, log log.FieldLogger) string {
	if !utf8.ValidString(v) {
		log.Errorf("Cannot encode %q as a query value: not valid UTF-8", v)
		return ""
	}
	return url.QueryEscape(v)
}
