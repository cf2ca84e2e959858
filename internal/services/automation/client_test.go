package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const fakeSessionID = "S1"

type cdpRequest struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// mockDevTools is a minimal DevTools endpoint serving one page target
type mockDevTools struct {
	t           *testing.T
	windowState string

	mu      sync.Mutex
	conn    *websocket.Conn
	methods []string
}

func newMockDevTools(t *testing.T, windowState string) (*mockDevTools, string) {
	t.Helper()
	m := &mockDevTools{t: t, windowState: windowState}
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.serve(conn)
	}))
	t.Cleanup(server.Close)

	return m, "ws" + strings.TrimPrefix(server.URL, "http") + "/devtools/browser/abc"
}

func (m *mockDevTools) serve(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req cdpRequest
		if err := json.Unmarshal(data, &req); err != nil {
			m.t.Errorf("bad request %q: %v", data, err)
			return
		}

		m.mu.Lock()
		m.methods = append(m.methods, req.Method)
		m.mu.Unlock()

		m.send(map[string]any{
			"id":        req.ID,
			"sessionId": req.SessionID,
			"result":    json.RawMessage(m.result(req)),
		})

		if req.Method == "Runtime.enable" {
			m.emit("Runtime.executionContextCreated", `{"context":{"id":1,"origin":"file://","name":"","uniqueId":"u1","auxData":{"frameId":"F1","isDefault":true,"type":"default"}}}`)
		}
	}
}

func (m *mockDevTools) result(req cdpRequest) string {
	switch req.Method {
	case "Target.getTargets":
		return `{"targetInfos":[
			{"targetId":"T1","type":"page","title":"shell","url":"file:///index.html","attached":false,"canAccessOpener":false},
			{"targetId":"T2","type":"page","title":"DevTools","url":"devtools://devtools/bundled/inspector.html","attached":false,"canAccessOpener":false},
			{"targetId":"T3","type":"service_worker","title":"sw","url":"file:///sw.js","attached":false,"canAccessOpener":false}]}`
	case "Target.attachToTarget":
		return `{"sessionId":"` + fakeSessionID + `"}`
	case "Runtime.evaluate":
		var p struct {
			Expression string `json:"expression"`
		}
		_ = json.Unmarshal(req.Params, &p)
		switch p.Expression {
		case "self":
			return `{"result":{"type":"object","className":"Window","description":"Window"}}`
		case "document.visibilityState":
			return `{"result":{"type":"string","value":"visible"}}`
		case "1 === 1":
			return `{"result":{"type":"boolean","value":true}}`
		case "null":
			return `{"result":{"type":"object","subtype":"null","value":null}}`
		default:
			return `{"result":{"type":"undefined"}}`
		}
	case "Page.getFrameTree":
		return `{"frameTree":{"frame":{"id":"F1","loaderId":"L1","url":"file:///index.html","securityOrigin":"file://","mimeType":"text/html"}}}`
	case "DOM.getDocument":
		return `{"root":{"nodeId":1,"backendNodeId":1,"nodeType":9,"nodeName":"#document","localName":"","nodeValue":"","childNodeCount":1,
			"children":[{"nodeId":5,"backendNodeId":5,"nodeType":1,"nodeName":"NEOVIM-EDITOR","localName":"neovim-editor","nodeValue":""}]}}`
	case "DOM.querySelector":
		var p struct {
			Selector string `json:"selector"`
		}
		_ = json.Unmarshal(req.Params, &p)
		if p.Selector == "neovim-editor" {
			return `{"nodeId":5}`
		}
		return `{"nodeId":0}`
	case "Browser.getWindowForTarget":
		return `{"windowId":7,"bounds":{"windowState":"normal"}}`
	case "Browser.getWindowBounds":
		return `{"bounds":{"windowState":"` + m.windowState + `"}}`
	default:
		return `{}`
	}
}

// emit pushes an event on the page session
func (m *mockDevTools) emit(method, params string) {
	m.send(map[string]any{
		"method":    method,
		"sessionId": fakeSessionID,
		"params":    json.RawMessage(params),
	})
}

func (m *mockDevTools) send(msg map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return
	}
	_ = m.conn.WriteJSON(msg)
}

func (m *mockDevTools) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.methods {
		if got == method {
			n++
		}
	}
	return n
}

func connectMock(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, arbor.NewNoOpLogger(), ConnectOptions{
		DebuggerURL: url,
		CallTimeout: 2 * time.Second,
		HostLogs:    func() []string { return []string{"host ready"} },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_SequentialCalls(t *testing.T) {
	mock, url := newMockDevTools(t, "normal")
	client := connectMock(t, url)
	ctx := context.Background()

	handle := client.WindowHandle()
	assert.Equal(t, "T1", handle.TargetID)
	assert.Equal(t, "shell", handle.Title)
	assert.Equal(t, int64(7), handle.WindowID)

	value, err := client.EvaluateInPage(ctx, "1 === 1")
	require.NoError(t, err)
	assert.Equal(t, true, value)

	count, err := client.GetWindowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	visible, err := client.IsWindowVisible(ctx)
	require.NoError(t, err)
	assert.True(t, visible)

	el, err := client.FindElement(ctx, "neovim-editor")
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, int64(5), el.NodeID)
	assert.Equal(t, "neovim-editor", el.LocalName)

	missing, err := client.FindElement(ctx, ".no-such-element")
	require.NoError(t, err)
	assert.Nil(t, missing)

	for _, expr := range []string{"null", "undefined"} {
		value, err := client.EvaluateInPage(ctx, expr)
		require.NoError(t, err, expr)
		assert.Nil(t, value, expr)
	}

	host, err := client.GetHostContextLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"host ready"}, host)

	assert.Equal(t, 1, mock.count("Target.attachToTarget"))
}

func TestClient_CallsOutliveConnectContext(t *testing.T) {
	_, url := newMockDevTools(t, "normal")

	ctx, cancel := context.WithCancel(context.Background())
	client, err := Connect(ctx, arbor.NewNoOpLogger(), ConnectOptions{DebuggerURL: url, CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer client.Close()
	cancel()

	for i := 0; i < 3; i++ {
		value, err := client.EvaluateInPage(context.Background(), "1 === 1")
		require.NoError(t, err)
		assert.Equal(t, true, value)
	}
}

func TestClient_MinimizedWindowIsNotVisible(t *testing.T) {
	_, url := newMockDevTools(t, "minimized")
	client := connectMock(t, url)

	visible, err := client.IsWindowVisible(context.Background())
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestClient_CollectsConsoleEvents(t *testing.T) {
	mock, url := newMockDevTools(t, "normal")
	client := connectMock(t, url)

	_, err := client.EvaluateInPage(context.Background(), "1 === 1")
	require.NoError(t, err)

	mock.emit("Runtime.consoleAPICalled", `{"type":"error","args":[{"type":"string","value":"boom"}],"executionContextId":1,"timestamp":1700000000000}`)

	require.Eventually(t, func() bool {
		logs, err := client.GetUIContextLogs(context.Background())
		if err != nil {
			return false
		}
		for _, entry := range logs {
			if entry.String() == "[error] boom" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestConnect_NoWindowTarget(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req cdpRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			_ = conn.WriteJSON(map[string]any{"id": req.ID, "result": map[string]any{"targetInfos": []any{}}})
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Connect(ctx, arbor.NewNoOpLogger(), ConnectOptions{
		DebuggerURL: "ws" + strings.TrimPrefix(server.URL, "http") + "/devtools/browser/abc",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no window target")
}
