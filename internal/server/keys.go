package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/researcher/internal/i18n"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

// KeysHandler manages the third-party API keys a user stores for their jobs.
type KeysHandler struct {
	Store *store.Store
}

func (h *KeysHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.create)
	g.DELETE("/:id", h.delete)
}

func (h *KeysHandler) list(c echo.Context) error {
	keys, err := h.Store.ListAPIKeys(c.Request().Context(), c.Get("user_id").(string))
	if err != nil {
		return err
	}
	out := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyResponse(k))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *KeysHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req CreateAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.KeyValue = strings.TrimSpace(req.KeyValue)
	if req.Name == "" || req.KeyValue == "" {
		return echo.NewHTTPError(http.StatusBadRequest, i18n.M(i18n.MsgKeyFieldsRequired))
	}
	ctx := c.Request().Context()
	if _, err := h.Store.GetAPIKeyByName(ctx, userID, req.Name); err == nil {
		return echo.NewHTTPError(http.StatusConflict, i18n.M(i18n.MsgKeyExists))
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	key, err := h.Store.CreateAPIKey(ctx, userID, req.Name, req.KeyValue)
	if err != nil {
		// a concurrent insert with the same name loses on the unique index
		if errors.Is(err, store.ErrDuplicate) {
			return echo.NewHTTPError(http.StatusConflict, i18n.M(i18n.MsgKeyExists)).SetInternal(err)
		}
		return err
	}
	return c.JSON(http.StatusCreated, keyResponse(key))
}

func (h *KeysHandler) delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, i18n.M(i18n.MsgKeyNotFound))
	}
	if err := h.Store.DeleteAPIKey(c.Request().Context(), c.Get("user_id").(string), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, i18n.M(i18n.MsgKeyNotFound))
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func keyResponse(k store.APIKeyRecord) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, KeyValue: maskKey(k.Value), CreatedAt: k.CreatedAt}
}

// maskKey keeps the last four characters visible.
func maskKey(v string) string {
	r := []rune(v)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
