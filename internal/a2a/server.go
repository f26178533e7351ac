package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	wire "github.com/park285/chessbench-go/pkg/a2a"
)

// Executor handles one inbound message and returns the reply text.
type Executor interface {
	Execute(ctx context.Context, in wire.Message) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, in wire.Message) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, in wire.Message) (string, error) {
	return f(ctx, in)
}

// Handler serves the agent card and the message/send method.
type Handler struct {
	card   wire.AgentCard
	exec   Executor
	logger *zap.Logger
}

func NewHandler(card wire.AgentCard, exec Executor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{card: card, exec: exec, logger: logger}
}

// Register mounts the agent routes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET(wire.WellKnownCardPath, h.serveCard)
	r.POST("/", h.serveRPC)
}

func (h *Handler) serveCard(c *gin.Context) {
	c.JSON(http.StatusOK, h.card)
}

func (h *Handler) serveRPC(c *gin.Context) {
	var req wire.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, errorResponse("", wire.CodeParseError, "invalid json"))
		return
	}
	if req.Method != wire.MethodSend {
		c.JSON(http.StatusOK, errorResponse(req.ID, wire.CodeMethodNotFound, "method not found: "+req.Method))
		return
	}
	var params wire.SendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.JSON(http.StatusOK, errorResponse(req.ID, wire.CodeInvalidParams, "invalid params"))
		return
	}

	contextID := params.Message.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}
	in := params.Message
	in.ContextID = contextID

	text, err := h.exec.Execute(c.Request.Context(), in)
	if err != nil {
		h.logger.Error("a2a_execute_failed", zap.String("context_id", contextID), zap.Error(err))
		c.JSON(http.StatusOK, errorResponse(req.ID, wire.CodeInternalError, err.Error()))
		return
	}

	out := wire.NewTextMessage(wire.RoleAgent, uuid.NewString(), contextID, text)
	result, err := json.Marshal(out)
	if err != nil {
		c.JSON(http.StatusOK, errorResponse(req.ID, wire.CodeInternalError, "encode result"))
		return
	}
	c.JSON(http.StatusOK, wire.Response{JSONRPC: wire.JSONRPCVersion, ID: req.ID, Result: result})
}

func errorResponse(id string, code int, msg string) wire.Response {
	return wire.Response{
		JSONRPC: wire.JSONRPCVersion,
		ID:      id,
		Error:   &wire.RPCError{Code: code, Message: msg},
	}
}

// NewRouter builds a gin engine with recovery and request logging.
func NewRouter(logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(requestLogger(logger), gin.Recovery())
	return g
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("agent_listening", zap.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
