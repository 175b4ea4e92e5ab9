// Package aps implements the translation gateway against the Autodesk Platform
// Services Model Derivative API.
package aps

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

const (
	jobPath      = "/modelderivative/v2/designdata/job"
	manifestPath = "/modelderivative/v2/designdata/{urn}/manifest"

	DefaultBaseURL = "https://developer.api.autodesk.com"
	DefaultScopes  = "data:read data:write data:create"
)

type Config struct {
	BaseURL            string
	ClientID           string
	ClientSecret       string
	Scopes             string
	Region             string
	Timeout            time.Duration
	TokenRefreshMargin time.Duration
}

type Client struct {
	http    *resty.Client
	tokens  *TokenCache
	region  string
	timeout time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Scopes == "" {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	h := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    h,
		tokens:  NewTokenCache(h, cfg.ClientID, cfg.ClientSecret, cfg.Scopes, cfg.TokenRefreshMargin),
		region:  strings.ToUpper(cfg.Region),
		timeout: cfg.Timeout,
	}
}

// EncodeURN turns an object URN into the unpadded base64url form the
// derivative API uses as its job identifier.
func EncodeURN(sourceReference string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(sourceReference))
}

type submitFormat struct {
	Type  string   `json:"type"`
	Views []string `json:"views,omitempty"`
}

type submitRequest struct {
	Input struct {
		URN string `json:"urn"`
	} `json:"input"`
	Output struct {
		Destination *struct {
			Region string `json:"region"`
		} `json:"destination,omitempty"`
		Formats []submitFormat `json:"formats"`
	} `json:"output"`
}

func (c *Client) Submit(ctx context.Context, sourceReference string, outputs []domain.OutputFormat) (string, error) {
	var body submitRequest
	body.Input.URN = EncodeURN(sourceReference)
	if c.region != "" {
		body.Output.Destination = &struct {
			Region string `json:"region"`
		}{Region: c.region}
	}
	for _, o := range outputs {
		body.Output.Formats = append(body.Output.Formats, submitFormat{Type: o.Format, Views: o.Views})
	}

	var resp struct {
		Result string `json:"result"`
		URN    string `json:"urn"`
	}
	r, err := c.do(ctx, "submit", func(req *resty.Request) (*resty.Response, error) {
		return req.SetHeader("Content-Type", "application/json").
			SetHeader("x-ads-force", "true").
			SetBody(body).
			SetResult(&resp).
			Post(jobPath)
	})
	if err != nil {
		return "", err
	}
	if resp.URN == "" {
		return "", &domain.GatewayError{Op: "submit", StatusCode: r.StatusCode(), Transient: false, Err: fmt.Errorf("response carries no urn")}
	}
	return resp.URN, nil
}

type manifest struct {
	Status      string `json:"status"`
	Progress    string `json:"progress"`
	Derivatives []struct {
		Status   string `json:"status"`
		Messages []struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message any    `json:"message"`
		} `json:"messages"`
	} `json:"derivatives"`
}

func (c *Client) FetchStatus(ctx context.Context, externalJobID string) (domain.StatusReport, error) {
	var m manifest
	r, err := c.do(ctx, "status", func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("urn", externalJobID).SetResult(&m).Get(manifestPath)
	})
	if err != nil {
		return nil, err
	}
	return reportFor(m, r.Body())
}

func reportFor(m manifest, raw []byte) (domain.StatusReport, error) {
	switch strings.ToLower(m.Status) {
	case "pending", "":
		return domain.Progressing{Percent: 0}, nil
	case "inprogress":
		return domain.Progressing{Percent: ParseProgress(m.Progress)}, nil
	case "success":
		return domain.Completed{Manifest: json.RawMessage(append([]byte(nil), raw...))}, nil
	case "failed":
		code, msg := firstError(m)
		return domain.Rejected{Code: code, Message: msg}, nil
	case "timeout":
		return domain.Rejected{Code: domain.CodeVendorTimeout, Message: "translation timed out at the vendor"}, nil
	}
	// The vendor answered without rejecting anything; let the attempt budget decide.
	return nil, &domain.GatewayError{Op: "status", Transient: true, Err: fmt.Errorf("unknown manifest status %q", m.Status)}
}

func firstError(m manifest) (string, string) {
	for _, d := range m.Derivatives {
		for _, msg := range d.Messages {
			if msg.Type != "error" {
				continue
			}
			code := msg.Code
			if code == "" {
				code = domain.CodeTranslationFailed
			}
			return code, messageText(msg.Message)
		}
	}
	return domain.CodeTranslationFailed, "translation failed"
}

// messageText flattens the message field, which the vendor sends either as a
// string or as a list of strings.
func messageText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// ParseProgress reads "complete" or "NN% complete" into a percentage.
func ParseProgress(s string) int {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "complete" {
		return 100
	}
	num, _, ok := strings.Cut(s, "%")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0
	}
	return max(0, min(n, 100))
}

func (c *Client) Cancel(ctx context.Context, externalJobID string) error {
	_, err := c.do(ctx, "cancel", func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("urn", externalJobID).Delete(manifestPath)
	})
	return err
}

// do runs one authenticated call under the per-call timeout. A 401 drops the
// cached token and retries once.
func (c *Client) do(ctx context.Context, op string, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		tok, err := c.tokens.GetValidToken(ctx)
		if err != nil {
			return nil, err
		}
		r, err := send(c.http.R().SetContext(ctx).SetAuthToken(tok))
		if err != nil {
			return nil, &domain.GatewayError{Op: op, Transient: true, Err: err}
		}
		if r.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			logger.Warn.Printf("aps %s: token rejected, refreshing", op)
			c.tokens.Invalidate()
			continue
		}
		if r.IsError() {
			return r, classify(op, r)
		}
		return r, nil
	}
}

// classify maps an error response onto a GatewayError. Throttling, timeouts
// and server errors are transient; other 4xx are permanent.
func classify(op string, r *resty.Response) error {
	status := r.StatusCode()
	transient := status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout

	var body struct {
		Code       string `json:"code"`
		ErrorCode  string `json:"errorCode"`
		Diagnostic string `json:"diagnostic"`
		Detail     string `json:"developerMessage"`
	}
	_ = json.Unmarshal(r.Body(), &body)
	code := body.Code
	if code == "" {
		code = body.ErrorCode
	}
	msg := body.Diagnostic
	if msg == "" {
		msg = body.Detail
	}
	if msg == "" {
		msg = r.Status()
	}
	return &domain.GatewayError{
		Op:         op,
		StatusCode: status,
		Code:       code,
		Transient:  transient,
		Err:        errors.New(logger.SanitizeForLog(msg)),
	}
}

var _ port.TranslationGateway = (*Client)(nil)
