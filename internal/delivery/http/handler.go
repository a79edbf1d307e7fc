package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/husseinmohab/radical-faas/internal/core/functions"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

const maxBodyBytes = 10 << 20

// FunctionCreate is the deploy request body.
type FunctionCreate struct {
	Name         string   `json:"name" example:"calculator"`
	Runtime      string   `json:"runtime" example:"python:3.9-slim"`
	Handler      string   `json:"handler" example:"sample_function.handle"`
	Code         string   `json:"code"`
	Dependencies []string `json:"dependencies,omitempty" example:"requests,numpy"`
}

// InvokeRequest is the invoke request body. Payload must be a JSON object;
// a missing or null payload is sent as {}.
type InvokeRequest struct {
	Payload json.RawMessage `json:"payload" swaggertype:"object"`
}

// FunctionResponse is the envelope for every API response.
type FunctionResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message" example:"Function 'calculator' invoked successfully."`
	Details any    `json:"details,omitempty" swaggertype:"object"`
}

type Handler struct {
	mgr *functions.Manager
	lg  zerolog.Logger
}

func NewHandler(mgr *functions.Manager, lg zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &Handler{mgr: mgr, lg: lg.With().Str("component", "http").Logger()}

	r.Get("/", h.handleHealth)
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Route("/api/v1/functions", func(r chi.Router) {
		r.Post("/", h.handleDeployFunction)
		r.Get("/", h.handleListFunctions)
		r.Get("/{name}", h.handleGetFunction)
		r.Delete("/{name}", h.handleRemoveFunction)
		r.Post("/{name}/invoke", h.handleInvokeFunction)
	})

	return r
}

// handleHealth godoc
// @Summary  Health check
// @Tags     Health Check
// @Produce  json
// @Success  200 {object} map[string]string
// @Router   / [get]
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "RADICAL-FaaS API is running"})
}

// handleDeployFunction godoc
// @Summary      Deploy a new function
// @Description  Builds an image from the source and records it. Redeploying a name replaces it.
// @Tags         Functions
// @Accept       json
// @Produce      json
// @Param        function body FunctionCreate true "function source and metadata"
// @Success      201 {object} FunctionResponse
// @Failure      400 {object} FunctionResponse
// @Failure      500 {object} FunctionResponse
// @Router       /api/v1/functions [post]
func (h *Handler) handleDeployFunction(w http.ResponseWriter, r *http.Request) {
	var req FunctionCreate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, FunctionResponse{Status: "error", Message: "invalid json body"})
		return
	}

	rec, err := h.mgr.Deploy(r.Context(), functions.FunctionSpec{
		Name:         req.Name,
		Runtime:      req.Runtime,
		Handler:      req.Handler,
		Code:         req.Code,
		Dependencies: req.Dependencies,
	})
	if err != nil {
		h.writeError(w, fmt.Sprintf("Failed to deploy '%s'", req.Name), err)
		return
	}
	writeJSON(w, http.StatusCreated, FunctionResponse{
		Status:  "success",
		Message: fmt.Sprintf("Function '%s' deployed successfully.", rec.Name),
		Details: rec,
	})
}

// handleInvokeFunction godoc
// @Summary      Invoke a deployed function
// @Description  Runs the function once as a batch workload and returns its result in details.
// @Tags         Functions
// @Accept       json
// @Produce      json
// @Param        name    path string        true  "function name"
// @Param        request body InvokeRequest false "payload passed to the handler"
// @Success      200 {object} FunctionResponse
// @Failure      400 {object} FunctionResponse
// @Failure      404 {object} FunctionResponse
// @Failure      502 {object} FunctionResponse
// @Failure      504 {object} FunctionResponse
// @Router       /api/v1/functions/{name}/invoke [post]
func (h *Handler) handleInvokeFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req InvokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, FunctionResponse{Status: "error", Message: "invalid json body"})
		return
	}
	if !isObjectOrEmpty(req.Payload) {
		writeJSON(w, http.StatusBadRequest, FunctionResponse{Status: "error", Message: "payload must be a JSON object"})
		return
	}

	result, err := h.mgr.Invoke(r.Context(), name, req.Payload)
	if err != nil {
		h.writeError(w, fmt.Sprintf("Failed to invoke '%s'", name), err)
		return
	}
	writeJSON(w, http.StatusOK, FunctionResponse{
		Status:  "success",
		Message: fmt.Sprintf("Function '%s' invoked successfully.", name),
		Details: result,
	})
}

// handleListFunctions godoc
// @Summary  List deployed functions
// @Tags     Functions
// @Produce  json
// @Success  200 {array} functions.FunctionRecord
// @Router   /api/v1/functions [get]
func (h *Handler) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	list, err := h.mgr.ListFunctions(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list functions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetFunction godoc
// @Summary  Get a deployed function
// @Tags     Functions
// @Produce  json
// @Param    name path string true "function name"
// @Success  200 {object} functions.FunctionRecord
// @Failure  404 {object} FunctionResponse
// @Router   /api/v1/functions/{name} [get]
func (h *Handler) handleGetFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := h.mgr.GetFunction(r.Context(), name)
	if err != nil {
		h.writeError(w, fmt.Sprintf("Failed to get '%s'", name), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRemoveFunction godoc
// @Summary  Remove a function from the registry
// @Tags     Functions
// @Param    name path string true "function name"
// @Success  204
// @Failure  404 {object} FunctionResponse
// @Router   /api/v1/functions/{name} [delete]
func (h *Handler) handleRemoveFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.mgr.RemoveFunction(r.Context(), name); err != nil {
		h.writeError(w, fmt.Sprintf("Failed to remove '%s'", name), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isObjectOrEmpty(raw json.RawMessage) bool {
	p := bytes.TrimSpace(raw)
	return len(p) == 0 || bytes.Equal(p, []byte("null")) || p[0] == '{'
}

// statusFor maps the core error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, functions.ErrInvalidHandlerRef),
		errors.Is(err, functions.ErrInvalidSpec),
		errors.Is(err, functions.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, functions.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, functions.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, functions.ErrExecutionFailed),
		errors.Is(err, functions.ErrMalformedResult),
		errors.Is(err, functions.ErrOutputUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	details := map[string]any{}

	var ie *functions.InvocationError
	if errors.As(err, &ie) {
		if ie.Workload != "" {
			details["workload"] = ie.Workload
		}
		if ie.Output != "" {
			details["output"] = ie.Output
		}
	}
	var be *functions.BuildError
	if errors.As(err, &be) && be.Output != "" {
		details["build_output"] = be.Output
	}

	ev := h.lg.Warn()
	if status >= http.StatusInternalServerError {
		ev = h.lg.Error()
	}
	ev.Err(err).Int("status", status).Msg(msg)

	resp := FunctionResponse{Status: "error", Message: fmt.Sprintf("%s: %v", msg, err)}
	if len(details) > 0 {
		resp.Details = details
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
