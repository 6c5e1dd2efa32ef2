// Package orchestrator answers user messages: it indexes the page a message
// points at, asks the resolver what to do, runs the resulting actions against
// the session and reports progress along the way.
//
// An Orchestrator is built once at process start and shared by every
// request. Requests for the same session must be serialized by the caller
// (see session.Locks).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/testpilot/pkg/action"
	"github.com/entrhq/testpilot/pkg/fixloop"
	"github.com/entrhq/testpilot/pkg/logging"
	"github.com/entrhq/testpilot/pkg/metrics"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/resolver"
	"github.com/entrhq/testpilot/pkg/retrieval"
	"github.com/entrhq/testpilot/pkg/security/targets"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

// Context texts passed to the resolver when retrieval found nothing.
const (
	NoContextAvailable = "No relevant context available."
	ContextError       = "Error retrieving context."
)

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message is required")

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

var logger = logging.MustLogger("orchestrator")

// Resolver decides what to do with a message. resolver.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Decision, error)
}

// Deps are the collaborators of an Orchestrator. Resolver is required.
type Deps struct {
	Store     *session.Store
	Resolver  Resolver
	Retriever retrieval.Retriever
	Cases     action.CaseGenerator
	Code      action.CodeGenerator
	Analyzer  action.FailureAnalyzer
	Loop      action.TestLoop
	Guard     *targets.Guard
	Metrics   *metrics.Metrics

	// MaxDistance and MaxResults bound retrieval for prompt context.
	MaxDistance float64
	MaxResults  int
}

// URLInfo describes the automatic indexing of the URL found in a message.
type URLInfo struct {
	URL             string `json:"url"`
	Domain          string `json:"domain,omitempty"`
	PagePath        string `json:"page_path,omitempty"`
	EmbeddingsNew   bool   `json:"embeddings_created"`
	EmbeddingsExist bool   `json:"embeddings_exist"`
	Error           string `json:"error,omitempty"`
}

// Reply is the answer to one user message.
type Reply struct {
	SessionID     string               `json:"session_id"`
	UserResponse  string               `json:"user_response"`
	Actions       []action.Action      `json:"actions"`
	ActionResults []types.ActionResult `json:"action_results"`
	URLInfo       *URLInfo             `json:"url_info,omitempty"`
	ContextUsed   bool                 `json:"context_used"`
	Session       session.Summary      `json:"session"`
}

// Orchestrator is the entry point for chat and test requests.
type Orchestrator struct {
	store       *session.Store
	resolver    Resolver
	retriever   retrieval.Retriever
	loop        action.TestLoop
	guard       *targets.Guard
	dispatcher  *action.Dispatcher
	maxDistance float64
	maxResults  int
}

// New wires the dispatcher and built-in actions around deps.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Resolver == nil {
		return nil, errors.New("orchestrator: resolver is required")
	}
	if deps.Store == nil {
		deps.Store = session.NewStore()
	}
	if deps.MaxDistance <= 0 {
		deps.MaxDistance = retrieval.DefaultMaxDistance
	}
	if deps.MaxResults <= 0 {
		deps.MaxResults = retrieval.DefaultMaxResults
	}

	d := action.NewDispatcher(deps.Store, action.WithMetrics(deps.Metrics))
	action.RegisterBuiltins(d, action.Deps{
		Retriever:   deps.Retriever,
		Cases:       deps.Cases,
		Code:        deps.Code,
		Analyzer:    deps.Analyzer,
		Loop:        deps.Loop,
		Guard:       deps.Guard,
		MaxDistance: deps.MaxDistance,
		MaxResults:  deps.MaxResults,
	})

	return &Orchestrator{
		store:       deps.Store,
		resolver:    deps.Resolver,
		retriever:   deps.Retriever,
		loop:        deps.Loop,
		guard:       deps.Guard,
		dispatcher:  d,
		maxDistance: deps.MaxDistance,
		maxResults:  deps.MaxResults,
	}, nil
}

// Dispatcher returns the action dispatcher.
func (o *Orchestrator) Dispatcher() *action.Dispatcher {
	return o.dispatcher
}

// ResolveAndAct answers message in session sessionID. An empty sessionID
// starts a new session. Progress is delivered to obs, which may be nil.
//
// The only error is ErrEmptyMessage. Resolution and action failures are
// reported in the reply.
func (o *Orchestrator) ResolveAndAct(ctx context.Context, sessionID, message string, obs progress.Observer) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	requestID := uuid.NewString()[:8]
	r := progress.NewReporter(obs)

	logger.Infof("[REQ:%s] processing message for session %s", requestID, sessionID)
	r.Report(ctx, types.EventTypeStatus, types.StepProcessingStart, map[string]interface{}{
		"message":    "Processing your request",
		"session_id": sessionID,
		"request_id": requestID,
	}, nil)

	urlInfo, pageContext := o.processURL(ctx, message, r)
	contextUsed := pageContext != "" && pageContext != NoContextAvailable && pageContext != ContextError

	r.Report(ctx, types.EventTypeStatus, types.StepPromptCreation, map[string]interface{}{
		"message":        "Creating prompt with context",
		"context_length": len(pageContext),
	}, nil)

	snapshot := o.store.GetOrCreate(sessionID)

	r.Report(ctx, types.EventTypeStatus, types.StepAIRequest, "Understanding your request", nil)
	decision, err := o.resolver.Resolve(ctx, resolver.Request{
		Message:          message,
		RetrievedContext: pageContext,
		Session:          snapshot,
	})
	if decision == nil {
		if err == nil {
			err = errors.New("resolver returned no decision")
		}
		decision = resolver.ErrorDecision(err)
	}
	if decision.Actions == nil {
		decision.Actions = []action.Action{}
	}
	if err != nil {
		logger.Errorf("[REQ:%s] resolution failed: %v", requestID, err)
		r.Error(ctx, types.StepProcessingError, err)
	}

	r.Report(ctx, types.EventTypeAIResponse, types.StepAIProcessed, map[string]interface{}{
		"user_response":   decision.UserResponse,
		"actions":         decision.Actions,
		"session_updates": decision.SessionUpdates,
		"fallback":        decision.Fallback,
	}, nil)

	s := snapshot.Clone()
	s.AddMessage(*types.NewUserMessage(message))
	s.ApplyUpdates(o.allowedURL(decision.SessionUpdates.CurrentURL), decision.SessionUpdates.Context)
	s.AddTrace("resolve", map[string]interface{}{
		"request_id": requestID,
		"actions":    len(decision.Actions),
		"fallback":   decision.Fallback,
	})
	o.store.Commit(s)

	actCtx := action.WithTurn(ctx, action.Turn{Message: message, Context: pageContext})
	results := o.dispatcher.Dispatch(actCtx, sessionID, decision.Actions, r)

	s = o.store.GetOrCreate(sessionID).Clone()
	s.AddMessage(*types.NewAssistantMessage(decision.UserResponse, results))
	o.store.Commit(s)

	reply := &Reply{
		SessionID:     sessionID,
		UserResponse:  decision.UserResponse,
		Actions:       decision.Actions,
		ActionResults: results,
		URLInfo:       urlInfo,
		ContextUsed:   contextUsed,
		Session:       s.Summary(),
	}

	r.Report(ctx, types.EventTypeFinalResponse, types.StepFinalResponse, reply, nil)
	logger.Infof("[REQ:%s] finished with %d action results", requestID, len(results))
	return reply, nil
}

// processURL indexes the first URL in message and fetches context for the
// message. Failures are logged and never stop the request.
func (o *Orchestrator) processURL(ctx context.Context, message string, r *progress.Reporter) (*URLInfo, string) {
	url := urlPattern.FindString(message)
	if url == "" {
		return nil, ""
	}

	info := &URLInfo{
		URL:      url,
		Domain:   retrieval.DomainName(url),
		PagePath: retrieval.PagePath(url),
	}
	r.Report(ctx, types.EventTypeURLInfo, types.StepURLProcessing, map[string]interface{}{
		"message": fmt.Sprintf("Processing URL: %s", url),
		"url":     url,
	}, nil)

	if err := o.guard.Validate(url); err != nil {
		logger.Warnf("skipping indexing of %s: %v", url, err)
		info.Error = err.Error()
		r.Report(ctx, types.EventTypeURLInfo, types.StepURLProcessed, info, nil)
		return info, ""
	}
	if o.retriever == nil {
		r.Report(ctx, types.EventTypeURLInfo, types.StepURLProcessed, info, nil)
		return info, ""
	}

	indexed, err := o.retriever.EnsureIndexed(ctx, url)
	if err != nil {
		logger.Errorf("failed to index %s: %v", url, err)
		info.Error = fmt.Sprintf("Error creating embeddings: %v", err)
		r.Report(ctx, types.EventTypeURLInfo, types.StepURLProcessed, info, nil)
		return info, ""
	}
	info.EmbeddingsNew = indexed.Created
	info.EmbeddingsExist = indexed.AlreadyExisted

	pageContext := o.pageContext(ctx, message, url)
	r.Report(ctx, types.EventTypeURLInfo, types.StepURLProcessed, info, map[string]interface{}{
		"context": pageContext,
	})
	return info, pageContext
}

func (o *Orchestrator) pageContext(ctx context.Context, message, url string) string {
	text, err := o.retriever.RelevantContext(ctx, message, url, o.maxDistance, o.maxResults)
	if err != nil {
		logger.Errorf("failed to get context for %s: %v", url, err)
		return ContextError
	}
	switch text {
	case "", retrieval.NoRelevantContext, retrieval.NoDomainContext:
		return NoContextAvailable
	}
	return text
}

// allowedURL drops a session URL update the guard rejects.
func (o *Orchestrator) allowedURL(url string) string {
	if url == "" {
		return ""
	}
	if err := o.guard.Validate(url); err != nil {
		logger.Warnf("ignoring session url update: %v", err)
		return ""
	}
	return url
}

// RunTestWithRetry runs req through the fix loop without touching any
// session.
func (o *Orchestrator) RunTestWithRetry(ctx context.Context, req fixloop.Request, obs progress.Observer) types.ExecutionResult {
	if req.TestName == "" {
		req.TestName = action.DefaultTestName
	}
	if o.loop == nil {
		return types.ExecutionResult{
			Status:   types.ExecutionError,
			TestName: req.TestName,
			URL:      req.URL,
			Error:    "test execution is not configured",
			ExitCode: -1,
		}
	}
	return o.loop.Run(ctx, req, progress.NewReporter(obs))
}

// ExecuteTest runs source as the execute_test action of session sessionID,
// so the result becomes the session's last result.
func (o *Orchestrator) ExecuteTest(ctx context.Context, sessionID string, params *action.ExecuteTestParams, obs progress.Observer) types.ActionResult {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx = action.WithTurn(ctx, action.Turn{Message: params.Requirements})
	results := o.dispatcher.Dispatch(ctx, sessionID, []action.Action{action.New(action.ExecuteTest, params)}, progress.NewReporter(obs))
	return results[0]
}

// Reset clears the working state of a session, keeping its conversation.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) types.ActionResult {
	return o.dispatcher.Dispatch(ctx, sessionID, []action.Action{action.New(action.ClearSession, &action.NoParams{})}, nil)[0]
}

// Clear forgets the session.
func (o *Orchestrator) Clear(sessionID string) {
	o.store.Clear(sessionID)
}

// Summary returns the summary of a stored session.
func (o *Orchestrator) Summary(sessionID string) (session.Summary, bool) {
	return o.store.Summary(sessionID)
}

// Session returns the stored snapshot of a session.
func (o *Orchestrator) Session(sessionID string) (*session.Session, bool) {
	return o.store.Get(sessionID)
}

// Sessions lists every stored session.
func (o *Orchestrator) Sessions() []session.Summary {
	return o.store.List()
}
