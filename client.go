package trino

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Trino statement protocol headers.
const (
	UserHeader               = "X-Trino-User"
	SourceHeader             = "X-Trino-Source"
	CatalogHeader            = "X-Trino-Catalog"
	SchemaHeader             = "X-Trino-Schema"
	ClientInfoHeader         = "X-Trino-Client-Info"
	TimeZoneHeader           = "X-Trino-Time-Zone"
	SessionHeader            = "X-Trino-Session"
	SetSessionHeader         = "X-Trino-Set-Session"
	ClearSessionHeader       = "X-Trino-Clear-Session"
	TransactionHeader        = "X-Trino-Transaction-Id"
	StartedTransactionHeader = "X-Trino-Started-Transaction-Id"
	ClearTransactionHeader   = "X-Trino-Clear-Transaction-Id"
	PreparedStatementHeader  = "X-Trino-Prepared-Statement"
	AddedPrepareHeader       = "X-Trino-Added-Prepare"
	DeallocatedPrepareHeader = "X-Trino-Deallocated-Prepare"

	statementPath = "v1/statement"

	// startTransactionMarker is sent in the transaction header when
	// transactional mode is enabled but no transaction is active yet.
	startTransactionMarker = "NONE"

	DefaultSource       = "trino-go-client"
	ContentEncodingGzip = "gzip"
)

// CredentialApplier decorates an outbound request with authentication
// material. Concrete auth methods (basic, bearer, Kerberos, OAuth) live
// outside the core and plug in through this hook.
type CredentialApplier func(*http.Request)

// Client owns the HTTP transport configuration shared by every query on a
// connection: base URL, http.Client, request timeout and the credential
// hook. It issues single exchanges; retrying is the QueryExecutor's job.
type Client struct {
	httpClient     *http.Client
	serverURL      *url.URL
	credential     CredentialApplier
	requestTimeout time.Duration
}

// NewClient parses the server URL and builds a transport client. When
// httpClient is nil the default http.Client is used; callers that need
// TLS or pooling control pass their own.
func NewClient(serverURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		serverURL:  parsed,
	}, nil
}

// Credential installs the credential applier hook.
func (c *Client) Credential(applier CredentialApplier) *Client {
	c.credential = applier
	return c
}

// RequestTimeout bounds each individual HTTP exchange. Zero means no
// per-exchange deadline beyond the caller's context.
func (c *Client) RequestTimeout(d time.Duration) *Client {
	c.requestTimeout = d
	return c
}

// prepareURL resolves a statement-protocol URI against the server base.
// Next-uri values are absolute and pass through unchanged.
func (c *Client) prepareURL(urlStr string) (*url.URL, error) {
	u, err := c.serverURL.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid statement URI %q: %w", urlStr, err)
	}
	return u, nil
}

// newRequest builds one outbound request with the shared transport
// concerns applied: body, accept-encoding and credentials. Protocol
// headers are the statementRequest builder's responsibility.
func (c *Client) newRequest(method, urlStr string, body string) (*http.Request, error) {
	u, err := c.prepareURL(urlStr)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/plain")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		}
	}
	req.Header.Set("Accept-Encoding", ContentEncodingGzip)

	if c.credential != nil {
		c.credential(req)
	}
	return req, nil
}

// roundTrip performs exactly one HTTP exchange. The caller classifies the
// outcome and decides whether to retry.
func (c *Client) roundTrip(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// decodeResponseBody decodes a (possibly gzip-compressed) JSON response
// body into v using number-preserving decoding, so bigint values survive
// the full 64-bit range.
func (c *Client) decodeResponseBody(resp *http.Response, v any) (err error) {
	defer func() {
		closeErr := resp.Body.Close()
		if err == nil {
			err = closeErr
		}
	}()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == ContentEncodingGzip {
		gz, gzErr := gzip.NewReader(resp.Body)
		if gzErr != nil {
			return fmt.Errorf("failed to create gzip reader: %w", gzErr)
		}
		defer func() {
			if cErr := gz.Close(); cErr != nil {
				log.Debug().Err(cErr).Msg("failed to close gzip reader")
			}
		}()
		reader = gz
	}

	dec := json.NewDecoder(reader)
	dec.UseNumber()
	if err = dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}
