package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"MacroPull/internal/domain/models"
	domrepo "MacroPull/internal/domain/repository"
	"MacroPull/internal/service/metrics"
	xhttp "MacroPull/pkg/http"
	xlogger "MacroPull/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait    = 5 * time.Second
	maxReadBytes = 512
)

// SnapshotStreamHandler pushes the cached snapshot to websocket clients on
// a fixed interval so dashboards need not poll.
type SnapshotStreamHandler struct {
	logger          *xlogger.Logger
	snapshots       domrepo.SnapshotProvider
	fallbackVersion string
	upgrader        websocket.Upgrader
	now             func() time.Time

	shutdown  chan struct{}
	closeOnce sync.Once
}

// NewSnapshotStreamHandler accepts any origin when allowedOrigins is empty.
func NewSnapshotStreamHandler(logger *xlogger.Logger, snapshots domrepo.SnapshotProvider, fallbackVersion string, allowedOrigins []string) *SnapshotStreamHandler {
	metrics.Register()
	return &SnapshotStreamHandler{
		logger:          logger,
		snapshots:       snapshots,
		fallbackVersion: fallbackVersion,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		now:      time.Now,
		shutdown: make(chan struct{}),
	}
}

// Close ends every open stream. Hijacked connections are not tracked by
// the HTTP server's graceful shutdown.
func (h *SnapshotStreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.shutdown) })
}

func (h *SnapshotStreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/snapshot", h.Stream)
}

func (h *SnapshotStreamHandler) Stream(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("stream").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err), xlogger.String("remote", c.RealIP()))
		return nil
	}
	defer conn.Close()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	go readUntilClosed(conn, cancel)

	interval := time.Duration(req.Interval) * time.Second
	h.logger.Debug("stream client connected", xlogger.String("remote", c.RealIP()), xlogger.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.push(ctx, conn); err != nil {
			h.logger.Debug("stream write failed", xlogger.Error(err))
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-h.shutdown:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case <-ticker.C:
		}
	}
}

func (h *SnapshotStreamHandler) push(ctx context.Context, conn *websocket.Conn) error {
	snap := h.snapshots.Get(ctx)
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(toSnapshotResponse(snap, h.fallbackVersion, h.now()))
}

// readUntilClosed drains client frames. Clients are not expected to send
// anything; the loop only exists to notice a close or a broken socket.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxReadBytes)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
