package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/jsonkeeper"
	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/logger"
	"github.com/totegamma/jsonkeeper/internal/metrics"
	"github.com/totegamma/jsonkeeper/internal/present/rest/middleware"
	"github.com/totegamma/jsonkeeper/internal/present/rest/presenter"
	"github.com/totegamma/jsonkeeper/internal/usecase"
)

// Subscriber delivers appended activities for the realtime endpoint.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan jsonkeeper.Event, error)
}

type Handler struct {
	config   domain.Config
	document *usecase.DocumentUsecase
	activity *usecase.ActivityLog
	signal   Subscriber
	metrics  *metrics.Metrics
}

func NewHandler(
	config domain.Config,
	document *usecase.DocumentUsecase,
	activity *usecase.ActivityLog,
	signal Subscriber,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		config:   config,
		document: document,
		activity: activity,
		signal:   signal,
		metrics:  m,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.handleIndex)

	api := e.Group("/"+h.config.APIPath, middleware.Credentials)
	api.GET("", h.handleAPIIndex)
	api.POST("", h.handleCreate)
	api.GET("/userlist", h.handleUserList)
	api.GET("/userdocs", h.handleUserDocs)
	api.GET("/:id", h.handleGet)
	api.PUT("/:id", h.handleUpdate)
	api.DELETE("/:id", h.handleDelete)
	api.GET("/:id/status", h.handleStatus)
	api.PATCH("/:id/status", h.handlePatchStatus)
	api.GET("/:id/:range", h.handleRange)

	if h.config.Activity.Enabled() {
		e.GET("/"+h.config.Activity.CollectionPath, h.handleCollection)
	}
	if h.signal != nil {
		e.GET("/realtime", h.handleRealtime)
	}
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{})))
	}
}

var acceptableContentType = regexp.MustCompile(`^application/([^/]+\+)?json$`)

// mediaType returns the request media type when it is JSON of some kind.
func mediaType(c echo.Context) (string, bool) {
	mt, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if err != nil {
		return "", false
	}
	return mt, acceptableContentType.MatchString(mt)
}

func contentTypeOf(doc domain.Document) string {
	if doc.IsJSONLD {
		return domain.MIMEJSONLD
	}
	return echo.MIMEApplicationJSON
}

func etag(payload []byte) string {
	return fmt.Sprintf(`"%016x"`, xxh3.Hash(payload))
}

func (h *Handler) handleIndex(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.document.Stats(ctx)
	if err != nil {
		return presenter.Error(c, err)
	}

	msg := fmt.Sprintf("Storing %d JSON documents.", stats.Documents)
	if stats.CollectionURL != "" {
		msg += fmt.Sprintf(
			" Serving an Activity Stream Collection with %d CollectionPages at %s",
			stats.ActivityPages, stats.CollectionURL,
		)
	}

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), "json") {
		return presenter.OK(c, echo.Map{"message": msg})
	}
	return c.String(http.StatusOK, msg)
}

func (h *Handler) handleAPIIndex(c echo.Context) error {
	return c.Redirect(http.StatusFound, "/")
}

func (h *Handler) handleCreate(c echo.Context) error {
	ctx := c.Request().Context()

	mt, ok := mediaType(c)
	if !ok {
		return presenter.UnsupportedMediaType(c)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	unlisted := false
	if value := c.Request().Header.Get(domain.UnlistedHeader); value != "" {
		unlisted, err = strconv.ParseBool(value)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid X-Unlisted header")
		}
	}

	result, err := h.document.Create(ctx, usecase.CreateInput{
		Payload:    body,
		IsJSONLD:   mt == domain.MIMEJSONLD,
		Unlisted:   unlisted,
		Credential: domain.CredentialFromContext(ctx),
	})
	if err != nil {
		return presenter.Error(c, err)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderLocation, result.URL)
	header.Set(domain.OutcomeHeader, result.Outcome.String())
	return presenter.Raw(c, http.StatusCreated, mt, result.Document.Payload)
}

func (h *Handler) handleGet(c echo.Context) error {
	ctx := c.Request().Context()

	doc, err := h.document.Get(ctx, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}

	tag := etag(doc.Payload)
	header := c.Response().Header()
	header.Set("ETag", tag)
	header.Set(echo.HeaderLastModified, doc.LastModified().Format(http.TimeFormat))
	if c.Request().Header.Get("If-None-Match") == tag {
		return c.NoContent(http.StatusNotModified)
	}

	return presenter.Raw(c, http.StatusOK, contentTypeOf(doc), doc.Payload)
}

func (h *Handler) handleUpdate(c echo.Context) error {
	ctx := c.Request().Context()

	mt, ok := mediaType(c)
	if !ok {
		return presenter.UnsupportedMediaType(c)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	result, err := h.document.Update(ctx, c.Param("id"), usecase.UpdateInput{
		Payload:    body,
		Credential: domain.CredentialFromContext(ctx),
	})
	if err != nil {
		return presenter.Error(c, err)
	}

	header := c.Response().Header()
	header.Set("ETag", etag(result.Document.Payload))
	header.Set(domain.OutcomeHeader, result.Outcome.String())
	return presenter.Raw(c, http.StatusOK, mt, result.Document.Payload)
}

func (h *Handler) handleDelete(c echo.Context) error {
	ctx := c.Request().Context()

	err := h.document.Delete(ctx, c.Param("id"), domain.CredentialFromContext(ctx))
	if err != nil {
		return presenter.Error(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()

	meta, err := h.document.Status(ctx, c.Param("id"), domain.CredentialFromContext(ctx))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, usecase.MetadataView(meta))
}

func (h *Handler) handlePatchStatus(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := mediaType(c); !ok {
		return presenter.UnsupportedMediaType(c)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	var patch usecase.StatusPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		return presenter.BadRequestMessage(c, "invalid status body")
	}

	meta, err := h.document.PatchStatus(ctx, c.Param("id"), domain.CredentialFromContext(ctx), patch)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, usecase.MetadataView(meta))
}

func (h *Handler) handleUserList(c echo.Context) error {
	ctx := c.Request().Context()

	urls, err := h.document.UserList(ctx, domain.CredentialFromContext(ctx))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, urls)
}

func (h *Handler) handleUserDocs(c echo.Context) error {
	ctx := c.Request().Context()

	docs, err := h.document.UserDocs(ctx, domain.CredentialFromContext(ctx))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, docs)
}

func (h *Handler) handleRange(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := jsonkeeper.ParseRangeSegment(c.Param("range"))
	if err != nil {
		return presenter.NotFound(c, "not found")
	}

	body, err := h.document.Range(ctx, c.Param("id"), n)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Raw(c, http.StatusOK, domain.MIMEJSONLD, body)
}

func (h *Handler) handleCollection(c echo.Context) error {
	ctx := c.Request().Context()
	c.Response().Header().Set(echo.HeaderContentType, domain.MIMEActivity)

	pageStr := c.QueryParam("page")
	if pageStr == "" {
		collection, err := h.activity.Collection(ctx)
		if err != nil {
			return presenter.Error(c, err)
		}
		return presenter.OK(c, collection)
	}

	page, err := strconv.ParseInt(pageStr, 10, 64)
	if err != nil {
		return presenter.NotFound(c, "activity page not found")
	}
	result, err := h.activity.Page(ctx, page)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) handleRealtime(c echo.Context) error {
	log := logger.Module("socket")

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket")
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	events, err := h.signal.Subscribe(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to subscribe")
		return nil
	}

	go func() {
		defer cancel()
		for {
			_, _, err := ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Msg("websocket closed")
				}
				return
			}
			// heartbeat
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(event); err != nil {
				log.Error().Err(err).Msg("error writing message")
				return nil
			}
		}
	}
}
