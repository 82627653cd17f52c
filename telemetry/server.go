package telemetry

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// NewServer builds the read-only status API over a board.
//
//	GET /status       latest snapshot
//	GET /generations  recent generation summaries
//	GET /healthz      liveness
func NewServer(board *Board) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "autopilot",
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(board.Snapshot())
	})

	app.Get("/generations", func(c *fiber.Ctx) error {
		return c.JSON(board.Generations())
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	return app
}

// Serve runs the status API on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, board *Board) error {
	app := NewServer(board)

	errc := make(chan error, 1)
	go func() {
		errc <- app.Listen(addr)
	}()
	slog.Info("status server listening", "addr", addr)

	select {
	case <-ctx.Done():
		return app.Shutdown()
	case err := <-errc:
		return err
	}
}
