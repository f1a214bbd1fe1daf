package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxAgentID ctxKey = iota
	ctxAgentName
	ctxAgentEmail
)

func WithAgent(ctx context.Context, agentID, name, email string) context.Context {
	ctx = context.WithValue(ctx, ctxAgentID, agentID)
	ctx = context.WithValue(ctx, ctxAgentName, name)
	ctx = context.WithValue(ctx, ctxAgentEmail, email)
	return ctx
}

func AgentID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxAgentID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("agent_id not in context")
}

func AgentName(ctx context.Context) string {
	if s, ok := ctx.Value(ctxAgentName).(string); ok {
		return s
	}
	return ""
}

func AgentEmail(ctx context.Context) string {
	if s, ok := ctx.Value(ctxAgentEmail).(string); ok {
		return s
	}
	return ""
}
