package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/fentz26/cadence/internal/checkpoint"
	"github.com/fentz26/cadence/internal/mcp"
	"github.com/fentz26/cadence/internal/phase"
	"github.com/fentz26/cadence/internal/store"
	"github.com/fentz26/cadence/internal/telemetry"
)

// JSON-RPC 2.0 error codes. The -3200x codes are cadence specific.
const (
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInvalidParams      = -32602
	CodeInternalError      = -32603
	CodeNotFound           = -32001
	CodeConflict           = -32002
	CodeFailedPrecondition = -32003
)

// maxRequestBytes caps the size of a request body.
const maxRequestBytes = 1 << 20

// Request is a JSON-RPC 2.0 request. A request without an id is a
// notification and gets no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorCode maps an error from the service, the store or the schema
// registry to its JSON-RPC code.
func ErrorCode(err error) int {
	var rpcErr *RPCError
	var paramsErr *mcp.ParamsError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &rpcErr):
		return rpcErr.Code
	case errors.Is(err, ErrMethodNotFound):
		return CodeMethodNotFound
	case errors.As(err, &paramsErr), errors.Is(err, ErrInvalidParams):
		return CodeInvalidParams
	case errors.Is(err, ErrFailedPrecondition),
		errors.Is(err, store.ErrSessionInactive),
		errors.Is(err, checkpoint.ErrNoSprint):
		return CodeFailedPrecondition
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, store.ErrConstraint):
		return CodeConflict
	case errors.Is(err, store.ErrValidation),
		errors.Is(err, phase.ErrInvalidAction),
		errors.Is(err, checkpoint.ErrInvalidName):
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

// Handler serves JSON-RPC requests against a Service.
type Handler struct {
	service  *Service
	registry *mcp.Registry
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewHandler creates a handler. A nil registry skips schema validation.
func NewHandler(service *Service, registry *mcp.Registry) *Handler {
	return &Handler{
		service:  service,
		registry: registry,
		metrics:  service.metrics,
		logger:   service.logger,
	}
}

// Handle runs one request and returns its response.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := Response{JSONRPC: "2.0", ID: req.ID}
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}

	ctx, span := telemetry.StartServerSpan(ctx, h.service.tracer, "rpc."+req.Method,
		telemetry.AttrMethod.String(req.Method))
	defer span.End()

	result, err := h.dispatch(ctx, req)
	if err == nil {
		data, mErr := json.Marshal(result)
		if mErr != nil {
			err = fmt.Errorf("encode result: %w", mErr)
		} else {
			resp.Result = data
		}
	}

	attrs := metric.WithAttributes(attribute.String("method", req.Method))
	h.metrics.RPCDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		resp.Error = toRPCError(err)
		span.SetStatus(codes.Error, resp.Error.Message)
		h.metrics.RPCErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.Int("code", resp.Error.Code),
		))
		level := slog.LevelWarn
		if resp.Error.Code == CodeInternalError {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "rpc failed", "method", req.Method, "code", resp.Error.Code, "error", err)
	}
	return resp
}

func (h *Handler) dispatch(ctx context.Context, req Request) (any, error) {
	if req.JSONRPC != "2.0" {
		return nil, &RPCError{Code: CodeInvalidRequest, Message: `jsonrpc must be "2.0"`}
	}
	if req.Method == "" {
		return nil, &RPCError{Code: CodeInvalidRequest, Message: "method is required"}
	}
	call, err := DecodeCall(h.registry, req.Method, req.Params)
	if err != nil {
		return nil, err
	}
	return h.service.Execute(ctx, call)
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := ErrorCode(err)
	msg := err.Error()
	if code == CodeInternalError {
		msg = "internal error: " + msg
	}
	return &RPCError{Code: code, Message: msg}
}

// ServeHTTP accepts a single JSON-RPC request per POST.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeResponse(w, errorResponse(CodeParseError, "read body: "+err.Error()))
		return
	}
	if len(body) > maxRequestBytes {
		writeResponse(w, errorResponse(CodeInvalidRequest, "request too large"))
		return
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		writeResponse(w, errorResponse(CodeInvalidRequest, "batch requests are not supported"))
		return
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		writeResponse(w, errorResponse(CodeParseError, "parse error: "+err.Error()))
		return
	}

	resp := h.Handle(r.Context(), req)
	if len(req.ID) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeResponse(w, resp)
}

func errorResponse(code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   &RPCError{Code: code, Message: msg},
	}
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
