package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Chapa talks to the Chapa payment API (https://api.chapa.co/v1). The
// secret never leaves the Authorization header; response bodies are kept
// raw in errors for support, the secret is not part of them.
type Chapa struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewChapa(baseURL, secretKey string, timeout time.Duration) *Chapa {
	return &Chapa{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Chapa) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	payload := map[string]any{
		"amount":       req.Amount,
		"currency":     req.Currency,
		"email":        req.Email,
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"tx_ref":       req.TxRef,
		"callback_url": req.CallbackURL,
		"return_url":   req.ReturnURL,
		"customization": map[string]string{
			"title":       "Safar",
			"description": "Payment for booking",
		},
	}

	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewBuffer(body))
	if err != nil {
		return nil, &GatewayError{Op: "initiate", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Op: "initiate", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GatewayError{Op: "initiate", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var res struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			CheckoutURL string `json:"checkout_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &GatewayError{Op: "initiate", StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("decode: %w", err)}
	}

	return &InitiateResult{
		ProviderStatus: strings.ToLower(res.Status),
		CheckoutURL:    res.Data.CheckoutURL,
	}, nil
}

func (c *Chapa) Verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	verifyURL := c.baseURL + "/transaction/verify/" + url.PathEscape(txRef)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, verifyURL, nil)
	if err != nil {
		return nil, &GatewayError{Op: "verify", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Op: "verify", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GatewayError{Op: "verify", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var res struct {
		Status string `json:"status"`
		Data   struct {
			Status    string `json:"status"`
			Reference string `json:"reference"`
			Method    string `json:"method"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &GatewayError{Op: "verify", StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("decode: %w", err)}
	}

	return &VerifyResult{
		ProviderStatus: strings.ToLower(strings.TrimSpace(res.Data.Status)),
		GatewayRef:     res.Data.Reference,
		Method:         res.Data.Method,
	}, nil
}
