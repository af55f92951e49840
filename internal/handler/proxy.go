package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"minij-proxy-go/internal/model"
	"minij-proxy-go/internal/service"
)

// ProxyHandler adapts echo requests to the ProxyService.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request and writes the buffered response back. The
// request context is passed through so a client disconnect aborts the
// upstream fetch.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	resp := h.service.Handle(&model.InboundRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Query:  req.URL.Query(),
		Header: req.Header,
	})

	writeResponseHeader(c.Response(), resp)

	if len(resp.Body) > 0 {
		if _, err := c.Response().Write(resp.Body); err != nil {
			h.logger.Debug("writing response body", "err", err)
		}
	}
	return nil
}

// writeResponseHeader copies the headers and status of resp onto w. When the
// upstream did not send a Content-Type none is added, and sniffing is
// suppressed.
func writeResponseHeader(w http.ResponseWriter, resp *model.ProxyResponse) {
	hdr := w.Header()
	for key, vals := range resp.Header {
		hdr[key] = vals
	}
	if _, ok := resp.Header["Content-Type"]; !ok {
		hdr["Content-Type"] = nil
	}
	w.WriteHeader(resp.StatusCode)
}
