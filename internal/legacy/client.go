package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Source is the read side of the legacy system consumed by the importer.
type Source interface {
	FetchAllClients(ctx context.Context) ([]ClientRecord, error)
	FetchClientNotes(ctx context.Context, agency string, clientGUID uuid.UUID, from, to time.Time) ([]NoteRecord, error)
}

const (
	dateLayout    = "2006-01-02"
	tokenLifetime = 5 * time.Minute
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithSigningKey makes the client send a short-lived HS256 bearer token on
// every request. An empty key disables signing.
func WithSigningKey(clientID string, key []byte) ClientOption {
	return func(cl *Client) {
		cl.clientID = clientID
		cl.signingKey = key
	}
}

// Client talks to the legacy JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	clientID   string
	signingKey []byte
	now        func() time.Time
}

// NewClient creates a Client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type notesRequest struct {
	Agency     string    `json:"agency"`
	DateFrom   string    `json:"dateFrom"`
	DateTo     string    `json:"dateTo"`
	ClientGUID uuid.UUID `json:"clientGuid"`
}

// FetchAllClients returns every client known to the legacy system.
func (c *Client) FetchAllClients(ctx context.Context) ([]ClientRecord, error) {
	var clients []ClientRecord
	if err := c.post(ctx, "/clients", nil, &clients); err != nil {
		return nil, newTransportError("fetch clients", "", uuid.Nil, err)
	}
	return clients, nil
}

// FetchClientNotes returns the notes of one client in the [from, to] date range.
func (c *Client) FetchClientNotes(ctx context.Context, agency string, clientGUID uuid.UUID, from, to time.Time) ([]NoteRecord, error) {
	payload := notesRequest{
		Agency:     agency,
		DateFrom:   from.Format(dateLayout),
		DateTo:     to.Format(dateLayout),
		ClientGUID: clientGUID,
	}
	var notes []NoteRecord
	if err := c.post(ctx, "/notes", payload, &notes); err != nil {
		return nil, newTransportError("fetch notes", agency, clientGUID, err)
	}
	return notes, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("non-2xx response: %d %s", e.code, e.body)
}

func newTransportError(op, agency string, clientGUID uuid.UUID, err error) *TransportError {
	te := &TransportError{Op: op, Agency: agency, ClientGUID: clientGUID, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		te.StatusCode = se.code
	}
	return te
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(c.signingKey) > 0 {
		token, err := c.signToken()
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read at most 1KB of the error body.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	// A JSON null body decodes to a nil slice, which callers treat as empty.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) signToken() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.clientID,
		Subject:   c.clientID,
		Audience:  jwt.ClaimStrings{c.baseURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
}
