package api

import (
	"log/slog"

	"github.com/smolev/konveyer/internal/gateway"
	"github.com/smolev/konveyer/internal/service"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	svc     *service.Service
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service *service.Service
	Gateway *gateway.Gateway
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		svc:     cfg.Service,
		gateway: cfg.Gateway,
		logger:  cfg.Logger,
	}
}
