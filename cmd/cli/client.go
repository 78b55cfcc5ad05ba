package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type client struct {
	base string
	key  string
	http *http.Client
}

type apiError struct {
	Status int
	Msg    string
}

func (e *apiError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("API returned status %d", e.Status)
	}
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Msg)
}

// do sends body as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	hc := c.http
	if hc == nil {
		// a manual check may wait for the probe and the advisory call
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Msg: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type target struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	LastStatus    int        `json:"last_status"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
	Monitoring    bool       `json:"monitoring"`
}

type record struct {
	ID         int64     `json:"id"`
	StatusCode int       `json:"status_code"`
	LatencyMS  float64   `json:"latency_ms"`
	Advisory   string    `json:"advisory"`
	CheckedAt  time.Time `json:"checked_at"`
}

type status struct {
	TargetID  string    `json:"target_id"`
	Active    bool      `json:"active"`
	Status    int       `json:"status"`
	Advisory  string    `json:"advisory"`
	CheckedAt time.Time `json:"checked_at"`
	Known     bool      `json:"known"`
}

func (c *client) addTarget(ctx context.Context, name, url string, monitor bool) (target, error) {
	var out struct {
		Target target `json:"target"`
	}
	err := c.do(ctx, http.MethodPost, "/api/targets", map[string]any{"name": name, "url": url, "monitor": monitor}, &out)
	return out.Target, err
}

func (c *client) listTargets(ctx context.Context) ([]target, error) {
	var out []target
	err := c.do(ctx, http.MethodGet, "/api/targets", nil, &out)
	return out, err
}

func (c *client) removeTarget(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/targets/"+id, nil, nil)
}

func (c *client) start(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/monitoring/"+id+"/start", nil, nil)
}

func (c *client) stop(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/monitoring/"+id+"/stop", nil, nil)
}

func (c *client) check(ctx context.Context, id string) (record, error) {
	var out record
	err := c.do(ctx, http.MethodPost, "/api/monitoring/"+id+"/check", nil, &out)
	return out, err
}

func (c *client) status(ctx context.Context, id string) (status, error) {
	var out status
	err := c.do(ctx, http.MethodGet, "/api/monitoring/"+id+"/status", nil, &out)
	return out, err
}

func (c *client) history(ctx context.Context, id string, limit int) ([]record, error) {
	var out []record
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/targets/%s/history?limit=%d", id, limit), nil, &out)
	return out, err
}
