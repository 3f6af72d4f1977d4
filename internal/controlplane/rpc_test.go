package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/cadence/internal/checkpoint"
	"github.com/fentz26/cadence/internal/mcp"
	"github.com/fentz26/cadence/internal/phase"
	"github.com/fentz26/cadence/internal/store"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	svc, _ := newTestService(t, nil)
	reg, err := mcp.NewDefaultRegistry()
	require.NoError(t, err)
	return NewHandler(svc, reg)
}

func post(t *testing.T, h http.Handler, body string) (int, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var resp Response
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestHandler_ErrorCodes(t *testing.T) {
	h := newTestHandler(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{"jsonrpc": "2.0", "id": 1, "method":`, CodeParseError},
		{"batch", `[{"jsonrpc": "2.0", "id": 1, "method": "list"}]`, CodeInvalidRequest},
		{"wrong version", `{"jsonrpc": "1.0", "id": 1, "method": "list"}`, CodeInvalidRequest},
		{"missing method", `{"jsonrpc": "2.0", "id": 1}`, CodeInvalidRequest},
		{"unknown method", `{"jsonrpc": "2.0", "id": 1, "method": "explode"}`, CodeMethodNotFound},
		{"missing param", `{"jsonrpc": "2.0", "id": 1, "method": "init", "params": {}}`, CodeInvalidParams},
		{"wrong param type", `{"jsonrpc": "2.0", "id": 1, "method": "status", "params": {"session_id": 3}}`, CodeInvalidParams},
		{"unknown session", `{"jsonrpc": "2.0", "id": 1, "method": "status", "params": {"session_id": "nope"}}`, CodeNotFound},
		{"unknown checkpoint", `{"jsonrpc": "2.0", "id": 1, "method": "restore", "params": {"checkpoint_id": "nope"}}`, CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := post(t, h, tc.body)
			require.Equal(t, http.StatusOK, status)
			require.NotNil(t, resp.Error, "expected an error response")
			assert.Equal(t, tc.code, resp.Error.Code, resp.Error.Message)
			assert.Empty(t, resp.Result)
			assert.Equal(t, "2.0", resp.JSONRPC)
		})
	}
}

func TestHandler_Flow(t *testing.T) {
	h := newTestHandler(t)

	_, resp := post(t, h, `{"jsonrpc": "2.0", "id": "a", "method": "init", "params": {"task": "build-api", "confidence_threshold": 0.7}}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"a"`, string(resp.ID))
	var initRes InitResult
	require.NoError(t, json.Unmarshal(resp.Result, &initRes))

	_, resp = post(t, h, fmt.Sprintf(`{"jsonrpc": "2.0", "id": 2, "method": "sprint", "params": {"session_id": %q}}`, initRes.SessionID))
	require.Nil(t, resp.Error)
	var sprint SprintResult
	require.NoError(t, json.Unmarshal(resp.Result, &sprint))
	assert.Equal(t, 1, sprint.SprintNumber)
	assert.False(t, sprint.ShouldContinue, "keyword score 0.8 meets the threshold")

	_, resp = post(t, h, fmt.Sprintf(`{"jsonrpc": "2.0", "id": 3, "method": "cancel", "params": {"session_id": %q}}`, initRes.SessionID))
	require.Nil(t, resp.Error)

	_, resp = post(t, h, fmt.Sprintf(`{"jsonrpc": "2.0", "id": 4, "method": "sprint", "params": {"session_id": %q}}`, initRes.SessionID))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeFailedPrecondition, resp.Error.Code)
}

func TestHandler_Notification(t *testing.T) {
	h := newTestHandler(t)
	status, _ := post(t, h, `{"jsonrpc": "2.0", "method": "init", "params": {"task": "quiet"}}`)
	assert.Equal(t, http.StatusNoContent, status)

	res, err := h.service.List(context.Background(), ListCall{Type: ListSessions})
	require.NoError(t, err)
	assert.Len(t, res.Sessions, 1, "notifications still run")
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandler_DisabledTool(t *testing.T) {
	h := newTestHandler(t)
	require.NoError(t, h.registry.Disable("metrics"))

	_, resp := post(t, h, `{"jsonrpc": "2.0", "id": 1, "method": "metrics", "params": {"session_id": "x"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestErrorCode(t *testing.T) {
	opErr := &store.OpError{Op: "create sprint", Kind: store.ErrConstraint, Err: errors.New("UNIQUE constraint failed")}
	cases := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{&RPCError{Code: CodeParseError}, CodeParseError},
		{fmt.Errorf("wrap: %w", ErrMethodNotFound), CodeMethodNotFound},
		{&mcp.ParamsError{Tool: "init", Message: "bad"}, CodeInvalidParams},
		{ErrSprintLimit, CodeFailedPrecondition},
		{store.ErrSessionInactive, CodeFailedPrecondition},
		{checkpoint.ErrNoSprint, CodeFailedPrecondition},
		{fmt.Errorf("load: %w", store.ErrNotFound), CodeNotFound},
		{opErr, CodeConflict},
		{store.ErrValidation, CodeInvalidParams},
		{phase.ErrInvalidTransition, CodeInvalidParams},
		{errors.New("disk on fire"), CodeInternalError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, ErrorCode(tc.err), "%v", tc.err)
	}
}
