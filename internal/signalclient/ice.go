package signalclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"
)

// FetchICEServers asks the server for the STUN list and, when coturn is
// configured, short-lived TURN credentials.
func FetchICEServers(ctx context.Context, apiURL, token string) ([]webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/ice", nil)
	if err != nil {
		return nil, fmt.Errorf("build ice request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: "jwt", Value: token})

	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ice request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ice request failed: status %d", resp.StatusCode)
	}

	var servers []webrtc.ICEServer
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return nil, fmt.Errorf("decode ice servers: %w", err)
	}

	return servers, nil
}
