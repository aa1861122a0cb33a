package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"factory-cell-controller/internal/command"
	"factory-cell-controller/internal/metrics"
	"factory-cell-controller/internal/util"
)

const (
	traceHeader  = "X-Trace-ID"
	maxBodyBytes = 64 << 10
)

// API 是单元的 HTTP 入口
// 所有写操作只投递命令到收件箱，由控制循环执行，结果通过任务通知返回
type API struct {
	inbox  *command.Inbox
	st     *StateTracker
	hub    *Hub
	logger *slog.Logger
}

// NewAPI 创建 HTTP 入口，hub 为 nil 时不提供 /ws
func NewAPI(inbox *command.Inbox, st *StateTracker, hub *Hub, logger *slog.Logger) *API {
	return &API{inbox: inbox, st: st, hub: hub, logger: logger.With("component", "api")}
}

// Handler 返回注册了所有路由的 http.Handler
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	if a.hub != nil {
		mux.HandleFunc("GET /ws", a.hub.ServeWs(func() any { return a.st.GetStateSnapshot() }))
	}
	mux.HandleFunc("GET /api/state", a.getState)
	mux.HandleFunc("POST /api/jobs", a.addJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", a.cancelJob)
	mux.HandleFunc("DELETE /api/orders/{id}", a.cancelOrder)
	mux.HandleFunc("POST /api/commands", a.factoryCommand)
	return withTrace(mux)
}

// withTrace 为每个请求分配 Trace ID，优先沿用请求头中的值
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = util.NewTraceID()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(util.ContextWithTraceID(r.Context(), traceID)))
	})
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.st.GetStateSnapshot())
}

func (a *API) addJob(w http.ResponseWriter, r *http.Request) {
	a.decodeAndSubmit(w, r, command.TopicAddJob)
}

func (a *API) factoryCommand(w http.ResponseWriter, r *http.Request) {
	a.decodeAndSubmit(w, r, command.TopicCommand)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		a.reject(w, r, http.StatusBadRequest, errors.New("job id must be an integer"))
		return
	}
	a.submit(w, r, command.CancelJob(id))
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		a.reject(w, r, http.StatusBadRequest, errors.New("order id must be an integer"))
		return
	}
	a.submit(w, r, command.CancelOrder(id))
}

// decodeAndSubmit 按消息总线的负载格式解析请求体
func (a *API) decodeAndSubmit(w http.ResponseWriter, r *http.Request, topic string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.reject(w, r, http.StatusBadRequest, err)
		return
	}
	cmd, err := command.Decode(topic, body)
	if err != nil {
		a.reject(w, r, http.StatusBadRequest, err)
		return
	}
	a.submit(w, r, cmd)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request, cmd command.Command) {
	if traceID, ok := util.TraceIDFromContext(r.Context()); ok {
		cmd.TraceID = traceID
	}
	if err := a.inbox.Submit(cmd); err != nil {
		metrics.CommandsTotal.WithLabelValues("http", "dropped").Inc()
		a.reject(w, r, http.StatusServiceUnavailable, err)
		return
	}
	metrics.CommandsTotal.WithLabelValues("http", "accepted").Inc()
	a.logger.Info("命令已投递", "kind", cmd.Kind, "trace_id", cmd.TraceID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "trace_id": cmd.TraceID})
}

func (a *API) reject(w http.ResponseWriter, r *http.Request, code int, err error) {
	traceID, _ := util.TraceIDFromContext(r.Context())
	a.logger.Warn("拒绝请求", "method", r.Method, "path", r.URL.Path, "status", code, "error", err, "trace_id", traceID)
	writeJSON(w, code, map[string]string{"status": "rejected", "error": err.Error(), "trace_id": traceID})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
