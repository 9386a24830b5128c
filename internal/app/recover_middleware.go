package app

import (
	"log"
	"runtime/debug"

	tele "gopkg.in/telebot.v3"
)

func RecoverMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("💥 PANIC [handler]: %v\n%s", r, string(debug.Stack()))
					err = nil
				}
			}()
			return next(c)
		}
	}
}

// RateLimitMiddleware drops messages sent less than a second apart.
// Admins and button presses are never limited.
func (a *App) RateLimitMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || c.Callback() != nil || a.cfg.IsAdmin(sender.ID) {
				return next(c)
			}
			if !a.rate.allow(sender.ID, a.now()) {
				return nil
			}
			return next(c)
		}
	}
}
