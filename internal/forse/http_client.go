package forse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/pkg/metrics"
)

const authHeader = "X-Forse-Key"

// HTTPClient issues real calls to Forse under a timeout. No retries and no
// circuit breaking; create failures propagate, the rest degrade gracefully
// at the call sites.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type createResponse struct {
	MilestoneID string `json:"milestone_id"`
}

func (c *HTTPClient) Create(ctx context.Context, req CreateRequest) (string, error) {
	start := time.Now()

	var out createResponse
	err := c.do(ctx, http.MethodPost, "/milestones", req, &out)
	if err != nil {
		metrics.RecordForseCallLatency("create", "error", time.Since(start))
		c.logger.Error("Forse milestone create failed",
			zap.String("project_id", req.ProjectID),
			zap.String("kpi_id", req.KpiID),
			zap.Error(err),
		)
		return "", err
	}
	metrics.RecordForseCallLatency("create", "success", time.Since(start))

	if out.MilestoneID == "" {
		return "", fmt.Errorf("forse create returned no milestone_id")
	}
	c.logger.Info("Forse milestone created",
		zap.String("remote_id", out.MilestoneID),
		zap.String("project_id", req.ProjectID),
	)
	return out.MilestoneID, nil
}

func (c *HTTPClient) UpdateTarget(ctx context.Context, remoteID string, target float64) (Effect, error) {
	start := time.Now()

	body := map[string]any{"target": target}
	var effect Effect
	err := c.do(ctx, http.MethodPatch, "/milestones/"+remoteID, body, &effect)
	if err != nil {
		metrics.RecordForseCallLatency("update_target", "error", time.Since(start))
		return nil, err
	}
	metrics.RecordForseCallLatency("update_target", "success", time.Since(start))
	return effect, nil
}

func (c *HTTPClient) Delete(ctx context.Context, remoteID string) bool {
	start := time.Now()

	err := c.do(ctx, http.MethodDelete, "/milestones/"+remoteID, nil, nil)
	if err != nil {
		metrics.RecordForseCallLatency("delete", "error", time.Since(start))
		c.logger.Warn("Forse milestone delete failed",
			zap.String("remote_id", remoteID),
			zap.Error(err),
		)
		return false
	}
	metrics.RecordForseCallLatency("delete", "success", time.Since(start))
	return true
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(detail))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("forse %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("forse response decode failed: %w", err)
		}
	}
	return nil
}
