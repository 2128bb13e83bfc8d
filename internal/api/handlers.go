/*-------------------------------------------------------------------------
 *
 * handlers.go
 *    HTTP handlers for the NeuronFlow API
 *
 * Registers the REST surface for workflows, agents, chat sessions, and
 * collaboration sessions on a gorilla/mux router.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/handlers.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/neurondb/NeuronFlow/internal/collab"
	"github.com/neurondb/NeuronFlow/internal/connectors"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/gateway"
	"github.com/neurondb/NeuronFlow/internal/metrics"
	"github.com/neurondb/NeuronFlow/internal/registry"
	"github.com/neurondb/NeuronFlow/internal/validation"
	"github.com/neurondb/NeuronFlow/internal/workflow"
	"github.com/neurondb/NeuronFlow/pkg/audit"
)

/* maxBodySize caps request bodies at 1 MiB */
const maxBodySize = 1 << 20

/* Handler wires the API surface to the service layer */
type Handler struct {
	database *db.DB
	queries  *db.Queries
	engine   *workflow.Engine
	gateway  *gateway.Gateway
	registry *registry.Registry
	collab   *collab.Manager
	router   *connectors.Router
	audit    *audit.Trail
}

func NewHandler(database *db.DB, queries *db.Queries, engine *workflow.Engine, gw *gateway.Gateway, reg *registry.Registry, collabMgr *collab.Manager, connRouter *connectors.Router, trail *audit.Trail) *Handler {
	return &Handler{
		database: database,
		queries:  queries,
		engine:   engine,
		gateway:  gw,
		registry: reg,
		collab:   collabMgr,
		router:   connRouter,
		audit:    trail,
	}
}

/* recordAudit records a control-plane action when a trail is configured */
func (h *Handler) recordAudit(action audit.Action, actor, subject string, details map[string]interface{}) {
	if h.audit == nil {
		return
	}
	h.audit.Record(action, actor, subject, details)
}

/* RegisterRoutes registers all API routes */
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	/* Workflows */
	api.HandleFunc("/workflows", h.CreateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows", h.ListWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", h.GetWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", h.DeleteWorkflow).Methods(http.MethodDelete)
	api.HandleFunc("/workflows/{id}/start", h.StartWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/collaborations", h.ListWorkflowCollaborations).Methods(http.MethodGet)

	/* Agents */
	api.HandleFunc("/agents", h.RegisterAgent).Methods(http.MethodPost)
	api.HandleFunc("/agents", h.ListAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", h.GetAgent).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", h.DeleteAgent).Methods(http.MethodDelete)
	api.HandleFunc("/agents/{id}/versions", h.PublishAgentVersion).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}/versions", h.ListAgentVersions).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/versions/{version}/activate", h.ActivateAgentVersion).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}/metrics", h.ListAgentMetrics).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/evolve", h.EvolveAgent).Methods(http.MethodPost)

	/* Chat sessions */
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/end", h.EndSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/messages", h.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages/stream", h.StreamMessage).Methods(http.MethodPost)

	/* Collaboration sessions */
	api.HandleFunc("/collaborations", h.StartCollaboration).Methods(http.MethodPost)
	api.HandleFunc("/collaborations/{id}", h.GetCollaboration).Methods(http.MethodGet)
	api.HandleFunc("/collaborations/{id}/contributions", h.Contribute).Methods(http.MethodPost)
	api.HandleFunc("/collaborations/{id}/end", h.EndCollaboration).Methods(http.MethodPost)
}

/* Health reports service and dependency health */
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]string{"database": "healthy"}

	if err := h.database.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		components["database"] = "unhealthy"
	}
	for name, err := range h.router.HealthAll(r.Context()) {
		key := "connector:" + name
		if err != nil {
			status = "degraded"
			components[key] = "unhealthy"
		} else {
			components[key] = "healthy"
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

/* decodeBody reads and decodes a JSON request body */
func decodeBody(r *http.Request, dest interface{}) error {
	body, err := validation.ReadAndValidateBody(r, maxBodySize)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

/* pathUUID extracts and parses a UUID path variable */
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	value := mux.Vars(r)[name]
	if err := validation.ValidateUUIDRequired(value, name); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(value)
}

/* queryInt reads an integer query parameter with a default */
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

/* Workflow handlers */

func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	createReq := workflow.CreateRequest{
		Name:           req.Name,
		Description:    req.Description,
		ProjectType:    req.ProjectType,
		Definition:     req.Definition,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Steps:          make([]workflow.StepSpec, len(req.Steps)),
	}
	if req.SessionID != nil {
		sessionID, err := uuid.Parse(*req.SessionID)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid session_id")
			return
		}
		createReq.SessionID = &sessionID
	}
	for i, s := range req.Steps {
		createReq.Steps[i] = workflow.StepSpec{
			Phase:            s.Phase,
			Name:             s.Name,
			Description:      s.Description,
			Inputs:           s.Inputs,
			Agents:           s.Agents,
			DependsOn:        s.DependsOn,
			DispatchStrategy: s.DispatchStrategy,
			SideEffecting:    s.SideEffecting,
			MaxRetries:       s.MaxRetries,
			TimeoutSeconds:   s.TimeoutSeconds,
			ExecutionOrder:   s.ExecutionOrder,
		}
	}

	created, steps, err := h.engine.CreateWorkflow(r.Context(), createReq)
	if err != nil {
		if errors.Is(err, workflow.ErrValidation) {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	actor := ""
	if req.UserID != nil {
		actor = *req.UserID
	}
	h.recordAudit(audit.ActionWorkflowCreate, actor, created.ID.String(), map[string]interface{}{
		"name":  created.Name,
		"steps": len(steps),
	})

	if req.Start && created.Status == db.WorkflowPending {
		h.recordAudit(audit.ActionWorkflowStart, actor, created.ID.String(), nil)
		h.runWorkflowAsync(r.Context(), created.ID)
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"workflow": created,
		"steps":    steps,
	})
}

/* runWorkflowAsync executes a workflow detached from the request, keeping
 * only the request's log context */
func (h *Handler) runWorkflowAsync(reqCtx context.Context, workflowID uuid.UUID) {
	ctx := metrics.WithRequestIDLogContext(context.Background(), metrics.GetRequestIDFromContext(reqCtx))
	go func() {
		if err := h.engine.Run(ctx, workflowID); err != nil {
			metrics.ErrorWithContext(ctx, "Workflow execution finished with error", err, map[string]interface{}{
				"workflow_id": workflowID.String(),
			})
		}
	}()
}

func (h *Handler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.engine.GetStatus(r.Context(), workflowID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if status.Workflow.Status != db.WorkflowPending {
		respondError(w, r, http.StatusConflict, "workflow not startable: status="+status.Workflow.Status)
		return
	}

	h.recordAudit(audit.ActionWorkflowStart, "", workflowID.String(), nil)
	h.runWorkflowAsync(r.Context(), workflowID)
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"workflow_id": workflowID.String(),
		"status":      db.WorkflowRunning,
	})
}

func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	workflows, err := h.engine.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.engine.GetStatus(r.Context(), workflowID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflow": status.Workflow,
		"steps":    status.Steps,
		"progress": map[string]int{
			"completed": status.Completed,
			"failed":    status.Failed,
			"running":   status.Running,
			"pending":   status.Pending,
		},
	})
}

func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Delete(r.Context(), workflowID); err != nil {
		if errors.Is(err, workflow.ErrDeletionRejected) {
			respondError(w, r, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.recordAudit(audit.ActionWorkflowDelete, "", workflowID.String(), nil)
	respondJSON(w, http.StatusNoContent, nil)
}

/* Agent handlers */

func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidateStringRequired(req.Name, "name"); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateOneOf(req.Class, "class",
		registry.ClassConversational, registry.ClassWorkflow, registry.ClassArchitect, registry.ClassWriter); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := h.registry.Register(r.Context(), req.Name, req.Class, req.Description, registry.Definition{
		Persona:        req.Persona,
		Capabilities:   req.Capabilities,
		ToolAllowances: req.ToolAllowances,
		ModelName:      req.ModelName,
		Config:         req.Config,
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.recordAudit(audit.ActionAgentRegister, "", agent.ID.String(), map[string]interface{}{
		"name":  agent.Name,
		"class": req.Class,
	})
	respondJSON(w, http.StatusCreated, agent)
}

func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.queries.ListAgents(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	binding, err := h.registry.Resolve(r.Context(), agentID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	agent, err := h.queries.GetAgentByID(r.Context(), agentID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agent":          agent,
		"active_version": binding.Version,
	})
}

func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.queries.DeleteAgent(r.Context(), agentID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.recordAudit(audit.ActionAgentDelete, "", agentID.String(), nil)
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) PublishAgentVersion(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req PublishVersionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	version, err := h.registry.Publish(r.Context(), agentID, registry.Definition{
		Persona:        req.Persona,
		Capabilities:   req.Capabilities,
		ToolAllowances: req.ToolAllowances,
		ModelName:      req.ModelName,
		Config:         req.Config,
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.recordAudit(audit.ActionAgentPublish, "", agentID.String(), map[string]interface{}{
		"version": version.VersionNumber,
	})
	respondJSON(w, http.StatusCreated, version)
}

func (h *Handler) ListAgentVersions(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	versions, err := h.queries.ListAgentVersions(r.Context(), agentID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (h *Handler) ActivateAgentVersion(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	versionNumber, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil || versionNumber < 1 {
		respondError(w, r, http.StatusBadRequest, "invalid version number")
		return
	}

	if err := h.queries.ActivateAgentVersion(r.Context(), agentID, versionNumber); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.recordAudit(audit.ActionAgentActivate, "", agentID.String(), map[string]interface{}{
		"version": versionNumber,
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":       agentID.String(),
		"active_version": versionNumber,
	})
}

func (h *Handler) ListAgentMetrics(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	rows, err := h.queries.ListAgentPerformanceMetrics(r.Context(), agentID, limit, offset)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"metrics": rows})
}

func (h *Handler) EvolveAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	version, err := h.registry.EvaluateForEvolution(r.Context(), agentID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if version == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"agent_id": agentID.String(),
			"evolved":  false,
		})
		return
	}
	h.recordAudit(audit.ActionAgentEvolve, "", agentID.String(), map[string]interface{}{
		"version": version.VersionNumber,
	})
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"agent_id": agentID.String(),
		"evolved":  true,
		"version":  version,
	})
}

/* Chat handlers */

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidateStringRequired(req.UserID, "user_id"); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.gateway.CreateSession(r.Context(), req.UserID, req.Metadata)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.recordAudit(audit.ActionSessionCreate, req.UserID, session.ID.String(), nil)
	respondJSON(w, http.StatusCreated, session)
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ok, endedAt, err := h.gateway.EndSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if ok {
		h.recordAudit(audit.ActionSessionEnd, "", sessionID.String(), nil)
	}
	payload := map[string]interface{}{
		"session_id": sessionID.String(),
		"success":    ok,
	}
	if endedAt != nil {
		payload["ended_at"] = endedAt.UTC().Format(time.RFC3339Nano)
	}
	respondJSON(w, http.StatusOK, payload)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	messages, total, err := h.gateway.GetHistory(r.Context(), sessionID, limit, offset)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidateStringRequired(req.Message, "message"); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if req.Stream {
		h.streamMessage(w, r, sessionID, req)
		return
	}

	ctx := metrics.WithSessionIDLogContext(r.Context(), sessionID)
	resp, err := h.gateway.SendMessage(ctx, sessionID, req.Message, req.Context, gateway.SendMessageOptions{
		PreferredConnector: req.PreferredConnector,
		Model:              req.Model,
		Persona:            req.Persona,
		MaxTokens:          req.MaxTokens,
		Temperature:        req.Temperature,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrSessionEnded) {
			respondError(w, r, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

/* Collaboration handlers */

func (h *Handler) StartCollaboration(w http.ResponseWriter, r *http.Request) {
	var req StartCollaborationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidateUUIDRequired(req.WorkflowID, "workflow_id"); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	workflowID, _ := uuid.Parse(req.WorkflowID)

	session, err := h.collab.Start(r.Context(), workflowID, req.Objective, req.Participants, req.Context)
	if err != nil {
		if errors.Is(err, collab.ErrValidation) {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.recordAudit(audit.ActionCollabStart, "", session.ID.String(), map[string]interface{}{
		"workflow_id":  workflowID.String(),
		"participants": req.Participants,
	})
	respondJSON(w, http.StatusCreated, session)
}

func (h *Handler) GetCollaboration(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.collab.Get(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *Handler) ListWorkflowCollaborations(w http.ResponseWriter, r *http.Request) {
	workflowID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.collab.ListByWorkflow(r.Context(), workflowID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req ContributeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidateStringRequired(req.Agent, "agent"); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.collab.Contribute(r.Context(), sessionID, collab.Contribution{
		Agent:   req.Agent,
		Type:    req.Type,
		Content: req.Content,
	})
	if err != nil {
		if errors.Is(err, collab.ErrRejected) {
			respondError(w, r, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, collab.ErrValidation) {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *Handler) EndCollaboration(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req EndCollaborationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ok, err := h.collab.End(r.Context(), sessionID, req.Result)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if ok {
		h.recordAudit(audit.ActionCollabEnd, "", sessionID.String(), nil)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID.String(),
		"success":    ok,
	})
}
