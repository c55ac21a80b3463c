package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type hostClient struct {
	baseURL string
	http    *http.Client
}

func newClient() *hostClient {
	return &hostClient{
		baseURL: serverURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *hostClient) getJSON(path string, v any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readErrBody(resp))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *hostClient) postJSON(path string, v any) error {
	resp, err := c.http.Post(c.baseURL+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readErrBody(resp))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *hostClient) postRaw(path string, body []byte) ([]byte, error) {
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(out))
	}
	return out, nil
}

func readErrBody(resp *http.Response) string {
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}
