package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the bundled frontend; origin policy is
	// enforced upstream for this single-process deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSubscription upgrades the connection and holds it open until the
// encounter's job completes or the client goes away. Exactly one completion
// event is pushed; a client connecting after completion may receive none.
func (s *Server) handleSubscription(c *gin.Context) {
	encounterID, ok := encounterParam(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "encounterID", encounterID, "error", err)
		return
	}
	defer conn.Close()

	ch := s.notifier.Register(encounterID)
	defer s.notifier.Unregister(encounterID, ch)

	s.logger.Debug("subscriber connected", "encounterID", encounterID)

	// Drain client frames so pings are answered and disconnects surface.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("subscriber dropped", "encounterID", encounterID, "error", err)
				}
				return
			}
		}
	}()

	select {
	case event, open := <-ch:
		if !open {
			// Displaced by a newer subscriber for the same encounter.
			return
		}
		if err := conn.WriteJSON(event); err != nil {
			s.logger.Error("failed to push completion event", "encounterID", encounterID, "error", err)
		}
	case <-gone:
	case <-c.Request.Context().Done():
	}
}
