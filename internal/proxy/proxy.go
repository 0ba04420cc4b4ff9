// Package proxy forwards HTTP requests to registered targets, injecting each
// target's credentials.
//
// A request names its target in the X-Target-Id header. The forwarder
// resolves the target, builds the upstream URL from the target's
// protocol/host/port and the request's path and query, drops reserved
// headers, adds the target's Authorization header, and streams the
// upstream response back unmodified.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/majorcontext/portico/internal/log"
	"github.com/majorcontext/portico/internal/target"
)

// DefaultUpstreamTimeout bounds the wait for upstream response headers when
// none is configured.
const DefaultUpstreamTimeout = 60 * time.Second

// Resolver looks up a target by id, returning a copy.
type Resolver interface {
	Resolve(targetID string) (target.Config, bool)
}

// RequestLogData describes one proxied request.
type RequestLogData struct {
	RequestID    string
	Target       string // resolved target id, empty if resolution failed
	Method       string
	URL          string // upstream URL, empty if not built
	StatusCode   int
	Duration     time.Duration
	Err          error
	AuthScheme   target.AuthType
	AuthInjected bool
}

// RequestLogger is called once for each proxied request.
type RequestLogger func(data RequestLogData)

// Options configures a Forwarder.
type Options struct {
	// Client sends upstream requests. Defaults to NewUpstreamClient(DefaultUpstreamTimeout).
	Client *http.Client
	// Tokens supplies OAuth Authorization values. Defaults to a TokenCache without single-flight.
	Tokens TokenSource
	// PathPrefix is stripped from the request path, as written on the
	// request line, before it is appended to the target base URL.
	// Defaults to "/".
	PathPrefix string
	// Logger is called after every request.
	Logger RequestLogger
}

// Forwarder is an http.Handler that proxies requests to registered targets.
type Forwarder struct {
	targets Resolver
	client  *http.Client
	tokens  TokenSource
	prefix  string
	logger  RequestLogger
}

// NewForwarder creates a forwarder resolving targets from targets.
func NewForwarder(targets Resolver, opts Options) *Forwarder {
	f := &Forwarder{
		targets: targets,
		client:  opts.Client,
		tokens:  opts.Tokens,
		prefix:  opts.PathPrefix,
		logger:  opts.Logger,
	}
	if f.client == nil {
		f.client = NewUpstreamClient(DefaultUpstreamTimeout)
	}
	if f.tokens == nil {
		f.tokens = NewTokenCache(TokenCacheOptions{})
	}
	if f.prefix == "" {
		f.prefix = "/"
	}
	return f
}

// NewUpstreamClient returns a client suited to pass-through proxying:
// redirects are returned to the caller rather than followed, bodies are not
// transparently decompressed, and headerTimeout (if non-zero) bounds the
// wait for response headers. Response bodies are never cut off by a timeout.
func NewUpstreamClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// ServeHTTP runs the forwarding pipeline for one request.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entry := RequestLogData{
		RequestID: uuid.NewString(),
		Method:    r.Method,
	}
	logger := log.With("request_id", entry.RequestID)

	outReq, err := f.prepare(r, &entry)
	if err != nil {
		f.fail(w, logger, entry, start, err)
		return
	}

	resp, err := f.client.Do(outReq)
	if err != nil {
		f.fail(w, logger, entry, start, &Error{Kind: KindUpstreamGateway, Op: "upstream", Target: entry.Target, Err: err})
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	entry.StatusCode = resp.StatusCode
	if copyErr := streamBody(w, resp.Body); copyErr != nil {
		logger.Debug("response stream interrupted", "target", entry.Target, "error", copyErr)
		entry.Err = copyErr
	}
	entry.Duration = time.Since(start)

	logger.Debug("proxied request",
		"target", entry.Target,
		"method", entry.Method,
		"url", entry.URL,
		"status", entry.StatusCode,
		"auth", entry.AuthScheme.String(),
		"duration", entry.Duration)
	f.log(entry)
}

// prepare resolves the target and builds the outbound request, recording
// progress in entry.
func (f *Forwarder) prepare(r *http.Request, entry *RequestLogData) (*http.Request, error) {
	targetID := r.Header.Get(HeaderTargetID)
	if targetID == "" {
		return nil, &Error{Kind: KindBadRequest, Op: "resolve", Err: ErrMissingTargetID}
	}

	cfg, ok := f.targets.Resolve(targetID)
	if !ok {
		return nil, &Error{Kind: KindNotFound, Op: "resolve", Target: targetID, Err: ErrTargetNotFound}
	}
	entry.Target = cfg.ID
	entry.AuthScheme = cfg.Auth()

	if cfg.Host == "" {
		return nil, &Error{Kind: KindBadRequest, Op: "build", Target: cfg.ID, Err: ErrMissingHost}
	}

	path := strings.TrimPrefix(requestPath(r), f.prefix)
	hasQuery := r.URL.ForceQuery || r.URL.RawQuery != ""
	rawURL := BuildURL(cfg.Scheme(), cfg.Host, cfg.Port, path, r.URL.RawQuery, hasQuery)
	upstreamURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Op: "build", Target: cfg.ID, Err: err}
	}
	entry.URL = upstreamURL.Redacted()

	header := FilterHeaders(r.Header)

	auth, err := Authorization(r.Context(), cfg, f.tokens)
	if err != nil {
		return nil, &Error{Kind: KindUpstreamGateway, Op: "auth", Target: cfg.ID, Err: err}
	}

	body := r.Body
	if r.ContentLength == 0 {
		body = http.NoBody
	}
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, rawURL, body)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Op: "build", Target: cfg.ID, Err: err}
	}
	// Parsing re-encodes characters such as '{' and '"'; send the path as built.
	outReq.URL.Opaque = opaquePath(rawURL, outReq.URL.Host)
	outReq.ContentLength = r.ContentLength
	outReq.Header = header
	if auth != "" {
		outReq.Header.Set("Authorization", auth)
		entry.AuthInjected = true
	}
	// Keep the Go client from adding its own User-Agent.
	if _, ok := outReq.Header["User-Agent"]; !ok {
		outReq.Header.Set("User-Agent", "")
	}
	return outReq, nil
}

// requestPath returns the request path as the client wrote it on the request
// line, without the query. Requests built in-process have no RequestURI and
// fall back to the escaped URL path.
func requestPath(r *http.Request) string {
	uri := r.RequestURI
	if !strings.HasPrefix(uri, "/") {
		return r.URL.EscapedPath()
	}
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	return uri
}

// opaquePath extracts the path of rawURL, unmodified, for use as URL.Opaque.
// A path starting with "//" would be read back as an authority, so it is
// sent in absolute form instead.
func opaquePath(rawURL, host string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+len("://"):]
	}
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return "/"
	}
	rest = rest[i:]
	if j := strings.IndexByte(rest, '?'); j >= 0 {
		rest = rest[:j]
	}
	if strings.HasPrefix(rest, "//") {
		return "//" + host + rest
	}
	return rest
}

func (f *Forwarder) fail(w http.ResponseWriter, logger *slog.Logger, entry RequestLogData, start time.Time, err error) {
	pe := &Error{Kind: KindUpstreamGateway, Op: "upstream", Err: err}
	errors.As(err, &pe)

	entry.StatusCode = pe.Kind.StatusCode()
	entry.Err = err
	entry.Duration = time.Since(start)

	args := []any{
		"target", entry.Target,
		"method", entry.Method,
		"url", entry.URL,
		"status", entry.StatusCode,
		"timeout", IsTimeout(err),
		"error", err,
	}
	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug("proxy request canceled", args...)
	case pe.Kind == KindUpstreamGateway:
		logger.Warn("proxy request failed", args...)
	default:
		logger.Debug("proxy request rejected", args...)
	}

	writeError(w, pe)
	f.log(entry)
}

func (f *Forwarder) log(entry RequestLogData) {
	if f.logger != nil {
		f.logger(entry)
	}
}

// writeError reports a classified failure as a JSON body.
func writeError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.StatusCode())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":  e.Kind.String(),
		"detail": e.detail(),
	})
}

// streamBody copies src to w, flushing after every chunk so slow or
// unbounded responses (such as event streams) reach the caller promptly.
func streamBody(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	_ = rc.Flush()

	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			_ = rc.Flush()
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// IsTimeout reports whether err was caused by a timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
