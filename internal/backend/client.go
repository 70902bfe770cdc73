// Package backend talks to the remote order-processing service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/copyshop/internal/metrics"
	"github.com/local/copyshop/internal/order"
)

// User-facing texts for remote failures.
const (
	MsgServerUnavailable = "El servidor no está disponible. Contacta al administrador."
	MsgCannotConnect     = "No se puede conectar con el servidor. Verifica que esté funcionando."
	MsgSubmitFailed      = "Hubo un error al enviar tu solicitud. Por favor, inténtalo de nuevo."
	MsgConnection        = "Error de conexión. Por favor, verifica que el servidor esté funcionando."
)

// Endpoints are paths relative to the base URL.
type Endpoints struct {
	Health string
	Books  string
	Orders string
}

// Options configures the Client.
type Options struct {
	BaseURL        string
	Endpoints      Endpoints
	HealthTimeout  time.Duration
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client is a thin HTTP client for the order service. It never retries.
type Client struct {
	baseURL       string
	endpoints     Endpoints
	healthTimeout time.Duration
	httpClient    *http.Client
}

// New creates a Client with the provided options.
func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	ep := opts.Endpoints
	if ep.Health == "" {
		ep.Health = "/api/health"
	}
	if ep.Books == "" {
		ep.Books = "/api/libros/public"
	}
	if ep.Orders == "" {
		ep.Orders = "/api/solicitudes"
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		endpoints:     ep,
		healthTimeout: healthTimeout,
		httpClient:    client,
	}
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Receipt acknowledges an accepted order.
type Receipt struct {
	OrderNumber string
}

// SubmissionError is a non-2xx answer from the create-order endpoint.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("order rejected: HTTP %d: %s", e.StatusCode, e.Message)
}

// Health probes the health endpoint within the health timeout.
func (c *Client) Health(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveRemote("health", err, time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.endpoints.Health), nil)
	if err != nil {
		return &order.ConnectivityError{Op: "health", Message: MsgCannotConnect, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &order.ConnectivityError{Op: "health", Message: MsgCannotConnect, Err: markTimeout(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &order.ConnectivityError{Op: "health", Message: MsgServerUnavailable, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	return nil
}

type bookWire struct {
	ID     flexString `json:"id"`
	Titulo string     `json:"titulo"`
	Precio float64    `json:"precio"`
}

type booksResponse struct {
	Data []bookWire `json:"data"`
}

// PublicBooks fetches the public book catalog.
func (c *Client) PublicBooks(ctx context.Context) (books []order.Book, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRemote("books", err, time.Since(start)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.endpoints.Books), nil)
	if err != nil {
		return nil, &order.ConnectivityError{Op: "books", Message: MsgCannotConnect, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &order.ConnectivityError{Op: "books", Message: MsgCannotConnect, Err: markTimeout(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &order.ConnectivityError{Op: "books", Message: MsgServerUnavailable, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var out booksResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &order.ConnectivityError{Op: "books", Message: MsgServerUnavailable, Err: fmt.Errorf("decode catalog: %w", err)}
	}
	books = make([]order.Book, 0, len(out.Data))
	for _, b := range out.Data {
		books = append(books, order.Book{ID: string(b.ID), Title: b.Titulo, Price: b.Precio})
	}
	return books, nil
}

type submitResponse struct {
	Message string `json:"message"`
	Data    *struct {
		NumeroPedido flexString `json:"numeroPedido"`
	} `json:"data"`
}

// SubmitOrder posts the payload as multipart/form-data.
func (c *Client) SubmitOrder(ctx context.Context, p order.Payload) (rc Receipt, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRemote("submit", err, time.Since(start)) }()

	body, contentType, err := encodeMultipart(p)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode order: %w", err)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.endpoints.Orders), body)
	if err != nil {
		return Receipt{}, &order.ConnectivityError{Op: "submit", Message: MsgConnection, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	log.Info().Str("request_id", requestID).Int("fields", len(p.Fields)).Int("files", len(p.Attachments)).Int("bytes", body.Len()).Msg("submitting order")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, &order.ConnectivityError{Op: "submit", Message: MsgConnection, Err: markTimeout(err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out submitResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(out.Message)
		if decodeErr != nil || msg == "" {
			msg = MsgSubmitFailed
		}
		log.Warn().Str("request_id", requestID).Int("status", resp.StatusCode).Str("message", msg).Msg("order rejected")
		return Receipt{}, &SubmissionError{StatusCode: resp.StatusCode, Message: msg}
	}

	rc = Receipt{OrderNumber: "N/A"}
	if decodeErr != nil {
		log.Warn().Err(decodeErr).Str("request_id", requestID).Msg("order accepted but response was not JSON")
	} else if out.Data != nil && out.Data.NumeroPedido != "" {
		rc.OrderNumber = string(out.Data.NumeroPedido)
	}
	log.Info().Str("request_id", requestID).Str("order_number", rc.OrderNumber).Msg("order accepted")
	return rc, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(p order.Payload) (*bytes.Buffer, string, error) {
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)

	for _, f := range p.Fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return nil, "", err
		}
	}

	for _, a := range p.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(a.FieldName), quoteEscaper.Replace(a.FileName)))
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := w.Write(a.Data); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &b, mw.FormDataContentType(), nil
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = flexString(num.String())
	return nil
}

func markTimeout(err error) error {
	if err == nil {
		return nil
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	return err
}
