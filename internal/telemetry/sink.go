package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NewHTTPSink builds a Sink that POSTs a drained batch as a JSON array to
// endpoint. Used when telemetry.endpoint is configured; callers pass a
// nil Sink to New otherwise, which drops batches silently.
func NewHTTPSink(client *http.Client, endpoint string) Sink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(batch []Event) error {
		body, err := json.Marshal(batch)
		if err != nil {
			return err
		}
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("telemetry sink returned status %d", resp.StatusCode)
		}
		return nil
	}
}
