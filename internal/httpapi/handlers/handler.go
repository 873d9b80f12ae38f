package handlers

import (
	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/chat"
	"github.com/pulsecoach/backend/internal/program"
)

type Handler struct {
	Chat     *chat.Orchestrator
	Programs *program.Service
	Log      *zap.Logger
}

func NewHandler(orc *chat.Orchestrator, programs *program.Service, log *zap.Logger) *Handler {
	return &Handler{Chat: orc, Programs: programs, Log: log}
}
