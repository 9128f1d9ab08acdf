package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"

	"github.com/mohammad-safakhou/researcher/internal/i18n"
	"github.com/mohammad-safakhou/researcher/internal/logger"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
)

// errorHandler renders every error as {"error": msg}, translated into the
// locale negotiated from Accept-Language.
func errorHandler(log *logger.Logger, fallback language.Tag) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		he := toHTTPError(err)
		req := c.Request()
		kv := []interface{}{"status", he.Code, "method", req.Method, "path", req.URL.Path, "remote", c.RealIP(), "error", err}
		if he.Code >= http.StatusInternalServerError {
			log.Error("request failed", kv...)
		} else {
			log.Info("request rejected", kv...)
		}
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		tag := i18n.Negotiate(req.Header.Get("Accept-Language"), fallback)
		_ = c.JSON(he.Code, HTTPError{Error: localize(he, tag)})
	}
}

// toHTTPError maps domain errors onto status codes. Unknown errors become a
// generic 500 so storage details never reach the client.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var notReady *research.NotReadyError
	switch {
	case errors.As(err, &notReady):
		return echo.NewHTTPError(http.StatusBadRequest, i18n.M(i18n.MsgReportNotReady, notReady.Status.String()))
	case errors.Is(err, research.ErrReportMissing):
		return echo.NewHTTPError(http.StatusNotFound, i18n.M(i18n.MsgReportNotFound))
	case errors.Is(err, research.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, i18n.M(i18n.MsgJobNotFound))
	case errors.Is(err, research.ErrEmptyTopic):
		return echo.NewHTTPError(http.StatusBadRequest, i18n.M(i18n.MsgTopicRequired))
	case errors.Is(err, runtime.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, i18n.M(i18n.MsgUnauthenticated))
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, i18n.M(i18n.MsgInternal))
	}
}

func localize(he *echo.HTTPError, tag language.Tag) string {
	switch m := he.Message.(type) {
	case i18n.Message:
		return m.In(tag)
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}

// badRequest wraps a decoding error with the generic invalid request message.
func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, i18n.M(i18n.MsgInvalidRequest)).SetInternal(err)
}
