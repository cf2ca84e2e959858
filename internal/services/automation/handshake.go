package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// VersionInfo is the payload of the debugger's /json/version endpoint
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

var probeClient = &http.Client{Timeout: 2 * time.Second}

// Probe performs the automation handshake against host:port. It succeeds only
// once the debugger answers /json/version and accepts a websocket upgrade on
// the advertised URL.
func Probe(ctx context.Context, host string, port int) (*VersionInfo, error) {
	endpoint := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/json/version"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := probeClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", endpoint, resp.Status)
	}

	var info VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("%s did not advertise a websocket debugger url", endpoint)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.DialContext(ctx, info.WebSocketDebuggerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", info.WebSocketDebuggerURL, err)
	}
	_ = conn.Close()

	return &info, nil
}
