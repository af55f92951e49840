package bench

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
)

// StaticOrigin serves a single file as text/html for every path. It is the
// upstream the proxies fetch from during a run.
type StaticOrigin struct {
	e    *echo.Echo
	body []byte
}

// NewStaticOrigin serves body.
func NewStaticOrigin(body []byte) *StaticOrigin {
	o := &StaticOrigin{e: echo.New(), body: body}
	o.e.HideBanner = true
	o.e.HidePort = true
	o.e.Any("/", o.serve)
	o.e.Any("/*", o.serve)
	return o
}

// LoadStaticOrigin reads the file at path once and serves its contents.
func LoadStaticOrigin(path string) (*StaticOrigin, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read origin file: %w", err)
	}
	return NewStaticOrigin(body), nil
}

func (o *StaticOrigin) serve(c echo.Context) error {
	return c.Blob(http.StatusOK, "text/html", o.body)
}

// Handler exposes the origin as an http.Handler.
func (o *StaticOrigin) Handler() http.Handler {
	return o.e
}

// Serve accepts connections on ln until Shutdown is called.
func (o *StaticOrigin) Serve(ln net.Listener) error {
	if err := o.e.Server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the origin.
func (o *StaticOrigin) Shutdown(ctx context.Context) error {
	return o.e.Shutdown(ctx)
}
