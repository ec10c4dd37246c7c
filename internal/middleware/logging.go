// Package middleware holds the fiber middleware shared by every route.
package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logging returns a middleware that logs one line per request: method, path,
// status and latency. Streaming routes log when the response body finishes.
func Logging() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		log.Printf("%s %s -> %d (%s)", c.Method(), c.Path(), status, time.Since(start).Round(time.Millisecond))
		return err
	}
}
