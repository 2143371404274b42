package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-edp-api/internal/utils"
)

// RateLimit creates a per-user limiter. Rejections carry Retry-After in seconds.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	retryAfter := int(math.Ceil(window.Seconds()))

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return fmt.Sprintf("%s:%s", identifier, limiterSubject(c))
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many requests", fiber.Map{
				"retry_after_seconds": retryAfter,
			})
		},
	})
}

func limiterSubject(c *fiber.Ctx) string {
	switch id := c.Locals("user_id").(type) {
	case uint:
		if id != 0 {
			return strconv.FormatUint(uint64(id), 10)
		}
	case string:
		if id != "" {
			return id
		}
	}
	return c.IP()
}
