package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jwebster45206/campaign-engine/internal/handlers"
	"github.com/jwebster45206/campaign-engine/pkg/engine"
)

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func campaignURL(baseURL string, campaignID int64, path string) string {
	return fmt.Sprintf("%s/v1/campaigns/%d%s", baseURL, campaignID, path)
}

// doCommand sends cmd and returns the raw response body on success.
func doCommand(client *http.Client, baseURL string, campaignID int64, cmd *apiCommand) ([]byte, error) {
	var reqBody io.Reader
	if cmd.Body != nil {
		jsonData, err := json.Marshal(cmd.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(cmd.Method, campaignURL(baseURL, campaignID, cmd.Path), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, errorResp.Error)
	}
	return body, nil
}

func getEnvironment(client *http.Client, baseURL string, campaignID int64) (*engine.Snapshot, error) {
	body, err := doCommand(client, baseURL, campaignID, &apiCommand{Method: http.MethodGet, Path: "/environment"})
	if err != nil {
		return nil, err
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse environment response: %w", err)
	}
	if snap.EnvironmentState == nil {
		return nil, fmt.Errorf("environment response was empty")
	}
	return &snap, nil
}
