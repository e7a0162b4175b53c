package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"deployhook/internal/deploy"
	"deployhook/pkg/cmdutil"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v57/github"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB

	HeaderSignature = "X-Hub-Signature-256"
	HeaderDelivery  = "X-GitHub-Delivery"
	HeaderEvent     = "X-GitHub-Event"
)

// Response bodies
const (
	MsgNoSignature      = "No signature header"
	MsgInvalidSignature = "Invalid signature"
	MsgInvalidPayload   = "Invalid JSON payload"
	MsgPayloadTooLarge  = "Payload too large"
	MsgReadFailed       = "Failed to read payload"
	MsgIgnoredBranch    = "Ignoring non-main branch push"
	MsgDeployInProgress = "Deploy already in progress"
	MsgDeploySucceeded  = "Deploy triggered successfully"
	MsgDeployFailed     = "Deploy failed: "
)

var errPayloadTooLarge = errors.New("payload too large")

// pushPayload holds the only push fields the gateway acts on. Other fields
// are not type checked, so senders with a slightly different schema still
// deploy.
type pushPayload struct {
	Ref   *string `json:"ref"`
	After *string `json:"after"`
}

func (p *pushPayload) GetRef() string {
	if p == nil || p.Ref == nil {
		return ""
	}
	return *p.Ref
}

func (p *pushPayload) GetAfter() string {
	if p == nil || p.After == nil {
		return ""
	}
	return *p.After
}

// pushDetails extracts log attributes from a GitHub push event. The payload
// is only logged from, so a body go-github cannot decode yields nothing.
func pushDetails(body []byte) []any {
	var event github.PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil
	}

	var attrs []any
	if name := event.GetRepo().GetFullName(); name != "" {
		attrs = append(attrs, "repository", name)
	}
	if pusher := event.GetPusher().GetName(); pusher != "" {
		attrs = append(attrs, "pusher", pusher)
	}
	if len(event.Commits) > 0 {
		attrs = append(attrs, "commits", len(event.Commits))
	}
	return attrs
}

// HandleDeployWebhook authenticates a push webhook, filters it by branch ref
// and runs the deploy command, holding the response until the command exits.
func (s *Server) HandleDeployWebhook(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get(HeaderDelivery)
	logger := s.Logger.With(
		"request_id", middleware.GetReqID(r.Context()),
		"delivery_id", deliveryID,
		"event", r.Header.Get(HeaderEvent))

	body, err := readBody(r)
	if errors.Is(err, errPayloadTooLarge) {
		logger.Warn("Rejecting oversized payload", "content_length", r.ContentLength)
		respondText(w, http.StatusRequestEntityTooLarge, MsgPayloadTooLarge)
		return
	}
	if err != nil {
		logger.Warn("Failed to read request body", "error", err)
		respondText(w, http.StatusBadRequest, MsgReadFailed)
		return
	}

	if len(r.Header.Values(HeaderSignature)) == 0 {
		logger.Warn("Rejecting webhook without signature")
		respondText(w, http.StatusUnauthorized, MsgNoSignature)
		return
	}

	if !VerifySignature(body, r.Header.Get(HeaderSignature), s.Config.Secret) {
		logger.Warn("Rejecting webhook with invalid signature")
		respondText(w, http.StatusUnauthorized, MsgInvalidSignature)
		return
	}

	var push pushPayload
	if err := json.Unmarshal(body, &push); err != nil {
		logger.Warn("Failed to parse JSON payload", "error", err)
		respondText(w, http.StatusBadRequest, MsgInvalidPayload)
		return
	}
	logger = logger.With(pushDetails(body)...)

	ref := push.GetRef()
	if ref != s.Config.DeployBranchRef {
		logger.Info("Ignoring push to non-target ref", "ref", ref, "target", s.Config.DeployBranchRef)
		respondText(w, http.StatusOK, MsgIgnoredBranch)
		return
	}

	// The deploy outlives a caller that hangs up; the runner bounds it instead.
	ctx := context.WithoutCancel(r.Context())

	result, err := s.Deployer.Run(ctx, deploy.Request{
		Ref:        ref,
		Commit:     push.GetAfter(),
		DeliveryID: deliveryID,
	})
	if errors.Is(err, deploy.ErrDeployInProgress) {
		logger.Warn("Deploy already in progress, rejecting", "ref", ref)
		respondText(w, http.StatusConflict, MsgDeployInProgress)
		return
	}
	if err != nil {
		respondText(w, http.StatusInternalServerError, MsgDeployFailed+s.failureDetail(err, result))
		return
	}

	logger.Info("Deploy succeeded", "ref", ref, "commit", push.GetAfter())
	respondText(w, http.StatusOK, MsgDeploySucceeded)
}

// HandleNotFound answers every unknown route and method with an empty 404.
func (s *Server) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	s.Logger.Debug("No route", "method", r.Method, "path", r.URL.Path)
	respondText(w, http.StatusNotFound, "")
}

// failureDetail describes a failed deploy for the response body. Output is
// only included when enabled, with the secret redacted.
func (s *Server) failureDetail(err error, result *deploy.Result) string {
	detail := err.Error()
	if s.Config.ExposeOutput && result != nil && len(result.Output) > 0 {
		output := cmdutil.SanitizeOutput(result.Output, []string{s.Config.Secret})
		detail = fmt.Sprintf("%s\n%s", detail, output)
	}
	return detail
}

// readBody reads exactly Content-Length bytes. An unknown length reads as an
// empty body, which then fails signature verification.
func readBody(r *http.Request) ([]byte, error) {
	if r.ContentLength <= 0 {
		return []byte{}, nil
	}
	if r.ContentLength > MaxPayloadBytes {
		return nil, errPayloadTooLarge
	}

	body := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		return nil, fmt.Errorf("short body: %w", err)
	}
	return body, nil
}

// respondText writes a plain-text response. An empty body sends headers only.
func respondText(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if body != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(statusCode)
	if body != "" {
		_, _ = io.WriteString(w, body)
	}
}
