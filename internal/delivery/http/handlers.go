package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"ronpa-server/internal/service"
	"ronpa-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sessionRegistry - открытые игры (service.SessionManager).
type sessionRegistry interface {
	Create(ctx context.Context, req service.SetupRequest) (*service.GameLoop, error)
	Get(ctx context.Context, gameID string) (*service.GameLoop, error)
	CloseSession(gameID string) error
	DeleteSlot(ctx context.Context, gameID string) error
}

// slotReader - слоты сохранения (service.SessionStore).
type slotReader interface {
	ListSlots(ctx context.Context) ([]models.SaveSlot, error)
	LoadSlot(ctx context.Context, gameID string) (*models.GameState, error)
}

// archiveLister - архив персонажей (service.Archive).
type archiveLister interface {
	List() []models.Character
}

// sandboxChat - песочница (service.SandboxService).
type sandboxChat interface {
	Chat(ctx context.Context, characterID string, history []models.ChatMessage, input string) ([]models.ChatMessage, error)
}

// Handler обрабатывает HTTP запросы движка.
type Handler struct {
	sessions sessionRegistry
	slots    slotReader
	archive  archiveLister
	sandbox  sandboxChat
	logger   *zap.Logger
}

func NewHandler(sessions sessionRegistry, slots slotReader, archive archiveLister, sandbox sandboxChat, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		slots:    slots,
		archive:  archive,
		sandbox:  sandbox,
		logger:   logger.Named("HttpHandler"),
	}
}

// GameView - состояние игры и флаги оркестратора.
type GameView struct {
	State    *models.GameState `json:"state"`
	AutoPlay bool              `json:"autoPlay"`
	Busy     bool              `json:"busy"`
}

type turnRequest struct {
	Input string `json:"input" binding:"required"`
}

type autoPlayRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type muteRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

type sandboxRequest struct {
	History []models.ChatMessage `json:"history"`
	Input   string               `json:"input" binding:"required"`
}

type sandboxResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

// RegisterRoutes регистрирует маршруты /api.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")

	games := api.Group("/games")
	games.POST("", h.createGame)
	games.GET("/:id", h.getGame)
	games.DELETE("/:id", h.closeGame)
	games.POST("/:id/turns", h.submitTurn)
	games.POST("/:id/continue", h.continueGame)
	games.PUT("/:id/autoplay", h.setAutoPlay)
	games.PUT("/:id/mute", h.setMute)
	games.POST("/:id/characters/:cid/save", h.saveCharacter)

	slots := api.Group("/slots")
	slots.GET("", h.listSlots)
	slots.GET("/:id", h.getSlot)
	slots.DELETE("/:id", h.deleteSlot)

	api.GET("/archive", h.listArchive)
	api.POST("/sandbox/:cid", h.sandboxChat)
}

func (h *Handler) createGame(c *gin.Context) {
	var req service.SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	loop, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(loop))
}

func (h *Handler) getGame(c *gin.Context) {
	loop, ok := h.loop(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(loop))
}

func (h *Handler) closeGame(c *gin.Context) {
	if err := h.sessions.CloseSession(c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// submitTurn принимает ход игрока. По умолчанию ход выполняется в фоне
// (202, результат приходит по websocket); ?wait=true ждет завершения.
func (h *Handler) submitTurn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	loop, ok := h.loop(c)
	if !ok {
		return
	}
	if waitRequested(c) {
		if err := loop.Submit(c.Request.Context(), req.Input); err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(loop))
		return
	}
	if err := loop.SubmitAsync(req.Input); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.StatusResponse{Status: "accepted"})
}

func (h *Handler) continueGame(c *gin.Context) {
	loop, ok := h.loop(c)
	if !ok {
		return
	}
	if waitRequested(c) {
		if err := loop.Continue(c.Request.Context()); err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(loop))
		return
	}
	if err := loop.ContinueAsync(); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.StatusResponse{Status: "accepted"})
}

func (h *Handler) setAutoPlay(c *gin.Context) {
	var req autoPlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	loop, ok := h.loop(c)
	if !ok {
		return
	}
	loop.SetAutoPlay(*req.Enabled)
	c.JSON(http.StatusOK, viewOf(loop))
}

func (h *Handler) setMute(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	loop, ok := h.loop(c)
	if !ok {
		return
	}
	loop.SetMuted(*req.Muted)
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (h *Handler) saveCharacter(c *gin.Context) {
	loop, ok := h.loop(c)
	if !ok {
		return
	}
	if err := loop.SaveCharacterProfile(c.Request.Context(), c.Param("cid")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "saved"})
}

func (h *Handler) listSlots(c *gin.Context) {
	slots, err := h.slots.ListSlots(c.Request.Context())
	if err != nil {
		if !errors.Is(err, models.ErrCorruptState) {
			h.handleServiceError(c, err)
			return
		}
		// Битые слоты уже отброшены, отдаем уцелевшие.
		h.logger.Warn("Save slots degraded", zap.Error(err))
	}
	if slots == nil {
		slots = []models.SaveSlot{}
	}
	c.JSON(http.StatusOK, slots)
}

func (h *Handler) getSlot(c *gin.Context) {
	state, err := h.slots.LoadSlot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) deleteSlot(c *gin.Context) {
	if err := h.sessions.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listArchive(c *gin.Context) {
	entries := h.archive.List()
	if entries == nil {
		entries = []models.Character{}
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) sandboxChat(c *gin.Context) {
	var req sandboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	messages, err := h.sandbox.Chat(c.Request.Context(), c.Param("cid"), req.History, req.Input)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sandboxResponse{Messages: messages})
}

func (h *Handler) loop(c *gin.Context) (*service.GameLoop, bool) {
	loop, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return nil, false
	}
	return loop, true
}

func viewOf(loop *service.GameLoop) GameView {
	return GameView{
		State:    loop.State(),
		AutoPlay: loop.AutoPlayEnabled(),
		Busy:     loop.Busy(),
	}
}

func waitRequested(c *gin.Context) bool {
	wait, _ := strconv.ParseBool(c.Query("wait"))
	return wait
}

// handleServiceError переводит ошибки сервиса в HTTP-статусы.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var status int
	var message string

	switch {
	case errors.Is(err, models.ErrGameNotFound),
		errors.Is(err, models.ErrCharacterNotFound),
		errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrBadRequest):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrTurnInProgress):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrSessionClosed):
		status, message = http.StatusGone, err.Error()
	case errors.Is(err, models.ErrTransportFailure):
		status, message = http.StatusBadGateway, "narration service unavailable"
	default:
		status, message = http.StatusInternalServerError, "internal server error"
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, models.ErrorResponse{Error: message})
}
