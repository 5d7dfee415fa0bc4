package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/logger"
	"convoy/internal/proximity"
	"convoy/internal/services"
)

const (
	frameResults     = "results"
	frameStreamError = "stream_error"
	frameError       = "error"

	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

type NearbyHandler struct {
	nearby *services.NearbyService
	log    *slog.Logger
}

func NewNearbyHandler(nearby *services.NearbyService) *NearbyHandler {
	return &NearbyHandler{
		nearby: nearby,
		log:    logger.With("ws"),
	}
}

// List handles GET /nearby/:feed?lat=&lng=
func (h *NearbyHandler) List(c *gin.Context) {
	feed, err := h.nearby.ParseFeed(c.Param("feed"))
	if err != nil {
		respondError(c, err)
		return
	}
	center, ok := bindCenter(c)
	if !ok {
		return
	}

	res, err := h.nearby.Nearby(c.Request.Context(), feed, center)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// nearbyFrame is one server → client websocket message.
type nearbyFrame struct {
	Type     string             `json:"type"`
	Feed     services.Feed      `json:"feed"`
	Center   *entities.GeoPoint `json:"center,omitempty"`
	RadiusKm float64            `json:"radius_km,omitempty"`
	Results  []proximity.Result `json:"results,omitempty"`
	Window   string             `json:"window,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// frameQueue sits between the subscription callbacks, which run under the
// subscription lock and must not block, and the single websocket writer.
// Result frames coalesce: only the newest one is kept, since each carries the
// full result set. Other frames queue in order ahead of it.
type frameQueue struct {
	mu      sync.Mutex
	results *nearbyFrame
	others  []nearbyFrame
	signal  chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{signal: make(chan struct{}, 1)}
}

func (q *frameQueue) push(f nearbyFrame) {
	q.mu.Lock()
	if f.Type == frameResults {
		q.results = &f
	} else {
		q.others = append(q.others, f)
	}
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *frameQueue) drain() []nearbyFrame {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.others
	q.others = nil
	if q.results != nil {
		out = append(out, *q.results)
		q.results = nil
	}
	return out
}

// recenterRequest is the only client → server message: move the view.
type recenterRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Stream handles GET /ws/nearby/:feed?lat=&lng=
//
// The connection carries a live view of the feed. Every change to the result
// set is pushed as a "results" frame holding the full list; a window stream
// that dies is reported once as a "stream_error" frame while the other
// windows keep running. The client moves the view by sending {"lat","lng"},
// which replaces the subscription with one centered on the new point.
func (h *NearbyHandler) Stream(c *gin.Context) {
	feed, err := h.nearby.ParseFeed(c.Param("feed"))
	if err != nil {
		respondError(c, err)
		return
	}
	center, ok := bindCenter(c)
	if !ok {
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	queue := newFrameQueue()
	g, ctx := errgroup.WithContext(c.Request.Context())

	g.Go(func() error {
		return h.writeFrames(ctx, ws, queue)
	})
	g.Go(func() error {
		return h.readCommands(ctx, ws, feed, center, queue)
	})
	g.Go(func() error {
		// Unblocks ReadJSON once the writer or the request is gone.
		<-ctx.Done()
		return ws.SetReadDeadline(time.Now())
	})

	if err := g.Wait(); err != nil && !isClosure(err) {
		h.log.Debug("websocket closed", "feed", feed, "error", err)
	}
}

func (h *NearbyHandler) writeFrames(ctx context.Context, ws *websocket.Conn, queue *frameQueue) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-queue.signal:
		}
		for _, f := range queue.drain() {
			if err := ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return err
			}
			if err := ws.WriteJSON(f); err != nil {
				return err
			}
		}
	}
}

// readCommands owns the subscription: it starts the first one and swaps it
// on every re-center. The current subscription is stopped on return.
func (h *NearbyHandler) readCommands(ctx context.Context, ws *websocket.Conn, feed services.Feed, center entities.GeoPoint, queue *frameQueue) error {
	var current *services.FeedSubscription
	defer func() {
		if current != nil {
			current.Stop()
		}
	}()

	fc, _ := h.nearby.FeedConfig(feed)
	subscribe := func(center entities.GeoPoint) error {
		if err := center.Validate(); err != nil {
			return err
		}
		// The old view goes first so none of its frames can land after the
		// new view's.
		if current != nil {
			current.Stop()
			current = nil
		}
		sub, err := h.nearby.Watch(ctx, feed, center,
			func(results []proximity.Result) {
				if results == nil {
					results = []proximity.Result{}
				}
				queue.push(nearbyFrame{Type: frameResults, Feed: feed, Center: &center, RadiusKm: fc.RadiusKm, Results: results})
			},
			func(w geo.QueryWindow, err error) {
				queue.push(nearbyFrame{Type: frameStreamError, Feed: feed, Window: w.String(), Error: err.Error()})
			},
		)
		if err != nil {
			return err
		}
		current = sub
		return nil
	}

	// Without a first view the client can still re-center.
	if err := subscribe(center); err != nil {
		queue.push(nearbyFrame{Type: frameError, Feed: feed, Error: err.Error()})
	}

	for {
		var req recenterRequest
		if err := ws.ReadJSON(&req); err != nil {
			return err
		}
		if req.Lat == nil || req.Lng == nil {
			queue.push(nearbyFrame{Type: frameError, Feed: feed, Error: "lat and lng are required"})
			continue
		}
		// An invalid center keeps the previous view running.
		if err := subscribe(entities.NewGeoPoint(*req.Lat, *req.Lng)); err != nil {
			queue.push(nearbyFrame{Type: frameError, Feed: feed, Error: err.Error()})
		}
	}
}

func isClosure(err error) bool {
	return errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
