// handlers/stream.go
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"avolve-rewards/middleware"
	"avolve-rewards/services"
)

// streamKeepAlive is the interval between keepalive comments. A failed write
// ends the stream and drops the subscription.
var streamKeepAlive = 15 * time.Second

// SetupStreamRoutes exposes the claim feed as server-sent events. Identity
// comes from the token query parameter, checked by auth.
func SetupStreamRoutes(app *fiber.App, auth fiber.Handler, feed *services.ClaimFeed) {
	app.Get("/stream/claims", auth, StreamClaims(feed))
}

// StreamClaims streams the authenticated user's claim updates.
func StreamClaims(feed *services.ClaimFeed) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		updates := make(chan services.ClaimUpdate, 16)
		unsubscribe := feed.Subscribe(func(u services.ClaimUpdate) {
			if u.UserID != userID {
				return
			}
			select {
			case updates <- u:
			default:
				log.WithField("user_id", userID).Warn("claim stream is behind, dropping update")
			}
		})

		done := c.Context().Done()
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer unsubscribe()

			ticker := time.NewTicker(streamKeepAlive)
			defer ticker.Stop()

			// Initial keepalive (comment event)
			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case u := <-updates:
					payload, err := json.Marshal(u)
					if err != nil {
						continue
					}
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, payload)
				case <-ticker.C:
					w.WriteString(":\n\n")
				case <-done:
					return
				}
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}
			}
		})

		return nil
	}
}
