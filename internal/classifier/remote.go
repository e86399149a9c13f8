package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/af-corp/aegis-ids/internal/types"
)

type remoteRequest struct {
	Text string `json:"text"`
}

type remoteResponse struct {
	ClassID *int   `json:"class_id"`
	Label   string `json:"label"`
}

// Remote delegates classification to an HTTP scoring service.
// The service answers {"class_id": n} or {"label": "..."}.
type Remote struct {
	endpoint string
	client   *http.Client
}

// NewRemote creates a remote classifier. A zero timeout defaults to 800ms.
func NewRemote(endpoint string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	return &Remote{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Classify(ctx context.Context, text string) (types.Label, error) {
	body, err := json.Marshal(remoteRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("classifier returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding classifier response: %w", err)
	}

	if out.ClassID != nil {
		label, err := types.LabelForClass(*out.ClassID)
		if err != nil {
			return "", fmt.Errorf("%w: %d", ErrUnknownClass, *out.ClassID)
		}
		return label, nil
	}
	if label, ok := types.ParseLabel(out.Label); ok {
		return label, nil
	}
	return "", fmt.Errorf("%w: label %q", ErrUnknownClass, out.Label)
}
