package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

type createSessionRequest struct {
	SnapToRoad bool `json:"snap_to_road"`
}

type snapRequest struct {
	Enabled bool `json:"enabled"`
}

type finishRequest struct {
	Title string `json:"title"`
	Wait  bool   `json:"wait"`
}

// parseOptionalBody decodes the body into v when one was sent.
func parseOptionalBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(v)
}

// CreateDrawSessionHandler opens a session already in drawing mode.
func CreateDrawSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createSessionRequest
		if err := parseOptionalBody(c, &req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		snap, err := deps.Draw.Create(req.SnapToRoad)
		if err != nil {
			return errDomain(c, err)
		}
		c.Location("/v1/draw/sessions/" + snap.ID)
		return c.Status(fiber.StatusCreated).JSON(snap)
	}
}

// GetDrawSessionHandler returns the live view of a session.
func GetDrawSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.Draw.Snapshot(c.Params("id"))
		if err != nil {
			return errDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(snap)
	}
}

// StartDrawSessionHandler re-enters drawing mode with an empty line.
func StartDrawSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.Draw.Start(c.Params("id"))
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(snap)
	}
}

type pointRequest struct {
	Lon *float64 `json:"lon"`
	Lat *float64 `json:"lat"`
}

// AddDrawPointHandler places a point. POST body {"lon": ..., "lat": ...};
// both fields are required.
func AddDrawPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req pointRequest
		if err := c.BodyParser(&req); err != nil || req.Lon == nil || req.Lat == nil {
			return errBadRequest(c, "lon and lat are required")
		}
		snap, err := deps.Draw.Click(c.UserContext(), c.Params("id"), domain.GeoPoint{Lon: *req.Lon, Lat: *req.Lat})
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// UndoDrawPointHandler removes the most recent point.
func UndoDrawPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.Draw.Undo(c.Params("id"))
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// SetSnapToRoadHandler toggles road snapping for future points.
func SetSnapToRoadHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req snapRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "enabled is required")
		}
		snap, err := deps.Draw.SetSnapToRoad(c.Params("id"), req.Enabled)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// FinishDrawSessionHandler ends drawing and stores the segment.
func FinishDrawSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req finishRequest
		if err := parseOptionalBody(c, &req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		seg, err := deps.Draw.Finish(c.UserContext(), c.Params("id"), req.Title, req.Wait)
		if err != nil {
			return errDomain(c, err)
		}
		c.Location("/v1/segments/" + seg.ID)
		return c.Status(fiber.StatusCreated).JSON(seg)
	}
}

// DeleteDrawSessionHandler clears a session and releases its line.
func DeleteDrawSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Draw.Delete(c.Params("id")); err != nil {
			return errDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
