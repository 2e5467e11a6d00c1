package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/audit"
	"github.com/boshu2/gatekeeper/internal/bootstrap"
	"github.com/boshu2/gatekeeper/internal/config"
	"github.com/boshu2/gatekeeper/internal/gate"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/metrics"
	"github.com/boshu2/gatekeeper/internal/pathauth"
	"github.com/boshu2/gatekeeper/internal/plan"
	"github.com/boshu2/gatekeeper/internal/preflight"
	"github.com/boshu2/gatekeeper/internal/replay"
	"github.com/boshu2/gatekeeper/internal/session"
)

// jsonRPCRequest, jsonRPCResponse, and rpcError mirror JSON-RPC 2.0's wire
// shape, grounded on vjache-cie's cmd/cie/mcp.go.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type mcpServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type mcpCapabilities struct {
	Tools map[string]any `json:"tools,omitempty"`
}

type mcpInitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    mcpCapabilities `json:"capabilities"`
	ServerInfo      mcpServerInfo   `json:"serverInfo"`
	Instructions    string          `json:"instructions"`
}

type mcpTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type mcpToolsListResult struct {
	Tools []mcpTool `json:"tools"`
}

type mcpToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

const (
	gatekeeperServerName = "gatekeeper"
	gatekeeperServerVersion = "1.0"
	gatekeeperProtocolVersion = "2024-11-05"
)

const gatekeeperInstructions = `gatekeeper brokers every workspace write through an admission pipeline.
Call begin_session first. Writers (executor role) must call read_prompt
before their first write_file; planner-role sessions may never call
write_file at all. list_plans enumerates authority you may cite.`

// ToolName is the closed set of tools gatekeeper's host adapter exposes,
// per the REDESIGN FLAGS' requirement that the dispatch table use a typed
// Go enum rather than a bare string switch (SPEC_FULL.md §A.4).
type ToolName string

const (
	ToolBeginSession                ToolName = "begin_session"
	ToolReadPrompt                  ToolName = "read_prompt"
	ToolReadFile                    ToolName = "read_file"
	ToolWriteFile                   ToolName = "write_file"
	ToolListPlans                   ToolName = "list_plans"
	ToolReadAuditLog                ToolName = "read_audit_log"
	ToolVerifyWorkspaceIntegrity    ToolName = "verify_workspace_integrity"
	ToolReplayExecution             ToolName = "replay_execution"
	ToolBootstrapCreateFoundationPlan ToolName = "bootstrap_create_foundation_plan"
)

// ToolFunc handles one tool/call invocation's decoded arguments and returns
// a JSON-serializable result or a typed error.
type ToolFunc func(ctx context.Context, s *mcpServer, args map[string]any) (any, error)

// toolHandlers is the closed dispatch table the REDESIGN FLAGS require:
// keyed by ToolName, not by a bare string.
var toolHandlers = map[ToolName]ToolFunc{
	ToolBeginSession:                  handleBeginSession,
	ToolReadPrompt:                    handleReadPrompt,
	ToolReadFile:                      handleReadFile,
	ToolWriteFile:                     handleWriteFile,
	ToolListPlans:                     handleListPlans,
	ToolReadAuditLog:                  handleReadAuditLog,
	ToolVerifyWorkspaceIntegrity:      handleVerifyWorkspaceIntegrity,
	ToolReplayExecution:               handleReplayExecution,
	ToolBootstrapCreateFoundationPlan: handleBootstrapCreateFoundationPlan,
}

// mcpServer holds the process-scoped state a long-running serve invocation
// accumulates across tool calls: the fixed launch configuration and role,
// a buffer for events arriving before begin_session, and the pipeline
// components created lazily once begin_session succeeds.
type mcpServer struct {
	cfg        *config.Config
	role       session.Role
	preSession *audit.PreSessionBuffer
	metrics    *metrics.Registry

	mu       sync.RWMutex
	sess     *session.Session
	paths    *pathauth.Authority
	registry *plan.Registry
	auditLog *audit.Log
	gate     *gate.Gate
	watcher  *plan.Watcher
}

func newMCPServer(cfg *config.Config, role session.Role) *mcpServer {
	return &mcpServer{
		cfg:        cfg,
		role:       role,
		preSession: audit.NewPreSessionBuffer(),
		metrics:    metrics.New(),
	}
}

// ready reports whether begin_session has already succeeded, returning the
// pipeline components under read lock.
func (s *mcpServer) ready() (*session.Session, *pathauth.Authority, *plan.Registry, *audit.Log, *gate.Gate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess, s.paths, s.registry, s.auditLog, s.gate, s.sess != nil
}

// handleRequest dispatches one decoded JSON-RPC request, mirroring
// vjache-cie's handleRequest switch.
func (s *mcpServer) handleRequest(ctx context.Context, req jsonRPCRequest) jsonRPCResponse {
	switch req.Method {
	case "initialize":
		return jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: mcpInitializeResult{
				ProtocolVersion: gatekeeperProtocolVersion,
				Capabilities:    mcpCapabilities{Tools: map[string]any{"listChanged": false}},
				ServerInfo:      mcpServerInfo{Name: gatekeeperServerName, Version: gatekeeperServerVersion},
				Instructions:    gatekeeperInstructions,
			},
		}

	case "notifications/initialized":
		return jsonRPCResponse{}

	case "tools/list":
		return jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  mcpToolsListResult{Tools: gatekeeperTools()},
		}

	case "tools/call":
		var params mcpToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{
				Code: -32602, Message: "Invalid params", Data: err.Error(),
			}}
		}

		handler, ok := toolHandlers[ToolName(params.Name)]
		if !ok {
			return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{
				Code: -32601, Message: "Method not found", Data: params.Name,
			}}
		}

		result, err := handler(ctx, s, params.Arguments)
		if err != nil {
			return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: toolErrorToRPC(err)}
		}
		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}

	default:
		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{
			Code: -32601, Message: "Method not found", Data: req.Method,
		}}
	}
}

// toolErrorToRPC renders a *gkerrors.Error as structured rpcError data so
// the host agent sees the same phase/code/invariant an envelope would
// carry; any other error is an internal error with no further structure.
func toolErrorToRPC(err error) *rpcError {
	ge, ok := asGKError(err)
	if !ok {
		return &rpcError{Code: -32603, Message: "Internal error", Data: err.Error()}
	}
	return &rpcError{
		Code:    -32000,
		Message: ge.Message,
		Data: map[string]string{
			"code":      string(ge.Code),
			"phase":     string(ge.Phase),
			"invariant": ge.Invariant,
		},
	}
}

func gatekeeperTools() []mcpTool {
	return []mcpTool{
		{
			Name:        string(ToolBeginSession),
			Description: "Lock the workspace root and start a governed session. Must be called first.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"workspace_root": map[string]any{"type": "string"}},
				"required":   []string{"workspace_root"},
			},
		},
		{
			Name:        string(ToolReadPrompt),
			Description: "Fetch canonical briefing text for a role-scoped prompt name; satisfies the prompt gate for writes.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"name": map[string]any{"type": "string"}},
				"required":   []string{"name"},
			},
		},
		{
			Name:        string(ToolReadFile),
			Description: "Read a file's bytes through the locked path authority.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
		{
			Name:        string(ToolWriteFile),
			Description: "Submit a write request through the admission pipeline (G1-G10).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":          map[string]any{"type": "string"},
					"content":       map[string]any{"type": "string"},
					"patch":         map[string]any{"type": "string"},
					"plan":          map[string]any{"type": "string"},
					"previous_hash": map[string]any{"type": "string"},
					"role":          map[string]any{"type": "string"},
					"owner":         map[string]any{"type": "string"},
					"purpose":       map[string]any{"type": "string"},
				},
				"required": []string{"path", "plan"},
			},
		},
		{
			Name:        string(ToolListPlans),
			Description: "List the registry's approved plan hashes.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        string(ToolReadAuditLog),
			Description: "Return the raw audit log byte stream, preceded by a line giving its entry count.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        string(ToolVerifyWorkspaceIntegrity),
			Description: "Check workspace lock validity and audit chain integrity; never mutates anything.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        string(ToolReplayExecution),
			Description: "Re-derive a verdict for one plan from the audit log.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"plan_hash": map[string]any{"type": "string"},
					"phase":     map[string]any{"type": "string"},
					"tool":      map[string]any{"type": "string"},
					"seq_lo":    map[string]any{"type": "number"},
					"seq_hi":    map[string]any{"type": "number"},
					"record":    map[string]any{"type": "boolean"},
				},
				"required": []string{"plan_hash"},
			},
		},
		{
			Name:        string(ToolBootstrapCreateFoundationPlan),
			Description: "Register the first plan into an empty registry via a signed bootstrap request.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":         map[string]any{"type": "string"},
					"plan_content": map[string]any{"type": "string"},
					"payload": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"repo_id":   map[string]any{"type": "string"},
							"timestamp": map[string]any{"type": "string"},
							"nonce":     map[string]any{"type": "string"},
							"action":    map[string]any{"type": "string"},
						},
					},
					"signature": map[string]any{"type": "string"},
				},
				"required": []string{"plan_content", "payload", "signature"},
			},
		},
	}
}

func handleBeginSession(_ context.Context, s *mcpServer, args map[string]any) (any, error) {
	root, _ := args["workspace_root"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionAlreadyInit,
			"session already initialized")
	}

	sess := session.New(s.role)
	authority, err := sess.Begin(root)
	if err != nil {
		s.preSession.Discard(root)
		return nil, err
	}

	registry, err := plan.Open(filepath.Join(authority.Root(), pathauth.MarkerDirName))
	if err != nil {
		return nil, err
	}
	auditLog, err := audit.Open(authority.Root())
	if err != nil {
		return nil, err
	}
	if err := s.preSession.FlushInto(root, auditLog); err != nil {
		return nil, fmt.Errorf("flush pre-session audit buffer: %w", err)
	}

	runner := preflight.NewRunner().WithMetrics(s.metrics)
	preflightCmd := preflight.Command{
		Name:    s.cfg.Preflight.Command,
		Args:    s.cfg.Preflight.Args,
		Timeout: s.cfg.Preflight.Timeout(),
	}
	g := gate.New(sess, registry, auditLog, runner, preflightCmd).WithMetrics(s.metrics)

	// serve is the one long-running gatekeeper process, so it is the only
	// caller that benefits from the advisory plans-directory watcher;
	// one-shot CLI commands begin and end within a single call and would
	// never observe a later filesystem change anyway.
	watcher, err := plan.NewWatcher(registry, nil)
	if err != nil {
		return nil, fmt.Errorf("start plan watcher: %w", err)
	}
	go watcher.Run()

	s.sess = sess
	s.paths = authority
	s.registry = registry
	s.auditLog = auditLog
	s.gate = g
	s.watcher = watcher

	return map[string]string{"status": "ok", "workspace_root": authority.Root()}, nil
}

func handleReadPrompt(_ context.Context, s *mcpServer, args map[string]any) (any, error) {
	sess, _, _, _, _, ok := s.ready()
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}

	name, _ := args["name"].(string)
	promptName := session.PromptName(name)
	if err := sess.FetchPrompt(promptName); err != nil {
		return nil, err
	}
	text, ok := session.PromptText(promptName)
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSchemaInvalid,
			"no canonical text registered for prompt name "+name)
	}
	return map[string]string{"text": text}, nil
}

func handleReadFile(_ context.Context, s *mcpServer, args map[string]any) (any, error) {
	_, paths, _, _, _, ok := s.ready()
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}

	path, _ := args["path"].(string)
	resolved, err := paths.ResolveRead(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhasePath, gkerrors.CodePathNotFound,
			"failed to read "+path, err)
	}
	return map[string]string{"path": path, "content": string(content)}, nil
}

func handleWriteFile(ctx context.Context, s *mcpServer, args map[string]any) (any, error) {
	_, _, _, _, g, ok := s.ready()
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}

	req, err := writeRequestFromArgs(args)
	if err != nil {
		return nil, err
	}

	outcome, err := g.Write(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":    outcome.Status,
		"plan":      outcome.PlanHash,
		"role":      outcome.Role,
		"path":      outcome.Path,
		"preflight": outcome.Preflight,
	}, nil
}

// writeRequestFromArgs builds a gate.WriteRequest from typed JSON-RPC
// arguments; per SPEC_FULL.md §A.4 the typed request struct, not the
// dispatch table, is what rejects illegal argument combinations such as a
// missing plan reference (G1 catches it once the request reaches the
// pipeline).
func writeRequestFromArgs(args map[string]any) (gate.WriteRequest, error) {
	path, _ := args["path"].(string)
	planRef, _ := args["plan"].(string)
	previousHash, _ := args["previous_hash"].(string)

	req := gate.WriteRequest{Path: path, PlanRef: planRef, PreviousHash: previousHash}

	if content, ok := args["content"].(string); ok {
		req.Content = []byte(content)
	}
	if patch, ok := args["patch"].(string); ok {
		req.Patch = []byte(patch)
	}

	role, hasRole := args["role"].(string)
	owner, hasOwner := args["owner"].(string)
	purpose, hasPurpose := args["purpose"].(string)
	if hasRole || hasOwner || hasPurpose {
		req.RoleHeader = &gate.RoleHeaderFields{
			Role:    gate.ArtifactRole(role),
			Owner:   owner,
			Purpose: purpose,
		}
	}

	return req, nil
}

func handleListPlans(_ context.Context, s *mcpServer, _ map[string]any) (any, error) {
	_, _, registry, _, _, ok := s.ready()
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}

	state := registry.State()
	hashes := make([]string, 0, len(state.PlanIndex))
	for hash, entry := range state.PlanIndex {
		if entry.Status == plan.StatusApproved {
			hashes = append(hashes, hash)
		}
	}
	sort.Strings(hashes)
	return map[string]any{"plans": hashes}, nil
}

func handleReadAuditLog(_ context.Context, s *mcpServer, _ map[string]any) (any, error) {
	_, _, _, auditLog, _, ok := s.ready()
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}

	records, err := auditLog.ReadAll()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(auditLog.Path())
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditChainBroken,
			"failed to read audit log file", err)
	}
	return map[string]any{"entry_count": len(records), "log": string(raw)}, nil
}

func handleVerifyWorkspaceIntegrity(_ context.Context, s *mcpServer, _ map[string]any) (any, error) {
	_, paths, _, auditLog, _, ok := s.ready()
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}
	return replay.VerifyWorkspaceIntegrity(paths, auditLog)
}

func handleReplayExecution(_ context.Context, s *mcpServer, args map[string]any) (any, error) {
	_, _, registry, auditLog, _, ok := s.ready()
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}

	planHash, _ := args["plan_hash"].(string)
	filters := replay.Filters{
		Phase: stringArg(args, "phase"),
		Tool:  stringArg(args, "tool"),
		SeqLo: uint64Arg(args, "seq_lo"),
		SeqHi: uint64Arg(args, "seq_hi"),
	}
	record, _ := args["record"].(bool)

	return replay.Replay(registry, auditLog, planHash, filters, record, s.metrics)
}

func handleBootstrapCreateFoundationPlan(_ context.Context, s *mcpServer, args map[string]any) (any, error) {
	_, _, registry, _, _, ok := s.ready()
	if !ok {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}

	planContent, _ := args["plan_content"].(string)
	signature, _ := args["signature"].(string)
	mac, err := hex.DecodeString(signature)
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodeBootstrapSignatureBad,
			"signature is not valid hex", err)
	}

	payloadArg, _ := args["payload"].(map[string]any)
	payload := bootstrap.Payload{
		RepoID: stringArg(payloadArg, "repo_id"),
		Nonce:  stringArg(payloadArg, "nonce"),
		Action: stringArg(payloadArg, "action"),
	}
	if ts, ok := payloadArg["timestamp"].(string); ok {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodeBootstrapSignatureBad,
				"timestamp is not RFC3339", err)
		}
		payload.Timestamp = parsed
	}

	secret, err := loadBootstrapSecret(s.cfg.Bootstrap.SecretPath, s.cfg.Bootstrap.SecretEnv)
	if err != nil {
		return nil, err
	}
	key, err := bootstrap.DeriveKey(secret)
	if err != nil {
		return nil, err
	}

	req := bootstrap.Request{Payload: payload, MAC: mac, PlanContent: []byte(planContent)}
	registered, err := bootstrap.Attempt(registry, key, req, time.Now())
	if err != nil {
		return nil, err
	}

	entry := registry.State().PlanIndex[registered.Hash]
	return map[string]string{
		"status":    string(registered.Header.Status),
		"plan_id":   registered.Hash,
		"plan_path": entry.FilePath,
	}, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func uint64Arg(args map[string]any, key string) uint64 {
	v, ok := args[key].(float64)
	if !ok || v < 0 {
		return 0
	}
	return uint64(v)
}

var serveMetricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON-RPC-over-stdio host adapter",
	Long: `Starts a long-running MCP-style server: one JSON-RPC 2.0 request per
line on stdin, one response per line on stdout. A single session spans the
whole process, created by the first begin_session call; every other tool
call before that returns SESSION_NOT_INITIALIZED. Grounded on the
hand-rolled JSON-RPC dispatcher in vjache-cie's cmd/cie/mcp.go, with a
closed ToolName enum in place of its bare string-keyed dispatch table
(REDESIGN FLAGS).

With --metrics-addr, also starts a /metrics HTTP listener exposing gate
outcome, preflight duration, audit-append latency, and replay finding
counts (internal/metrics) for scraping; omit the flag to run with no
listener at all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		role := resolveRole(cfg)
		if !role.IsValid() {
			return fmt.Errorf("invalid role %q: want executor or planner", role)
		}

		server := newMCPServer(cfg, role)

		metricsAddr := serveMetricsAddr
		if metricsAddr == "" {
			metricsAddr = cfg.Metrics.Addr
		}
		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(server.metrics.Gatherer(), promhttp.HandlerOpts{}))
			httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					fmt.Fprintf(os.Stderr, "gatekeeper serve: metrics listener failed: %v\n", err)
				}
			}()
			defer httpServer.Close()
		}

		serveMCPLoop(cmd.Context(), server)
		return nil
	},
}

// serveMCPLoop reads line-delimited JSON-RPC requests from stdin until EOF,
// mirroring vjache-cie's serveMCPLoop: a large scanner buffer (tool call
// arguments and write content can exceed the default 64KB line limit), a
// skip of truly empty responses (notifications/initialized), and an
// explicit stdout sync after every write.
func serveMCPLoop(ctx context.Context, server *mcpServer) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req jsonRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			fmt.Fprintf(os.Stderr, "gatekeeper serve: invalid JSON-RPC request: %v\n", err)
			continue
		}

		resp := server.handleRequest(ctx, req)
		if resp.ID == nil && resp.Result == nil && resp.Error == nil {
			continue
		}

		respBytes, err := json.Marshal(resp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gatekeeper serve: failed to encode response: %v\n", err)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s\n", respBytes)
		_ = os.Stdout.Sync()
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "gatekeeper serve: stdin read error: %v\n", err)
	}

	server.mu.RLock()
	watcher := server.watcher
	auditLog := server.auditLog
	server.mu.RUnlock()
	if watcher != nil {
		_ = watcher.Close()
	}
	if auditLog != nil {
		_ = auditLog.Close()
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Address to serve /metrics on (e.g. :9090); empty disables it")
}
