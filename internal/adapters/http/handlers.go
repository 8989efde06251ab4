package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

const maxProfilePoints = 5000

// CreateSegmentHandler samples, assembles and stores a drawn line.
// POST /v1/segments {"geojson": Feature<LineString>, "metadata": {"title": "..."}}
func CreateSegmentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in domain.SegmentInput
		if err := c.BodyParser(&in); err != nil {
			return errDomain(c, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err))
		}
		seg, err := deps.Segments.Save(c.UserContext(), in)
		if err != nil {
			return errDomain(c, err)
		}
		c.Location("/v1/segments/" + seg.ID)
		return c.Status(fiber.StatusCreated).JSON(seg)
	}
}

// ListSegmentsHandler returns a page of stored segments.
// GET /v1/segments?bbox=min_lon,min_lat,max_lon,max_lat&offset=0&limit=20
func ListSegmentsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var bounds *domain.Bounds
		if raw := c.Query("bbox"); raw != "" {
			b, err := parseBBox(raw)
			if err != nil {
				return errBadRequest(c, err.Error())
			}
			bounds = &b
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 20)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 20
		}

		segments, total, err := deps.Segments.List(c.UserContext(), bounds, offset, limit)
		if err != nil {
			return errDomain(c, err)
		}
		if segments == nil {
			segments = []domain.Segment{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: segments, Pagination: pg})
	}
}

// GetSegmentHandler returns a single segment by ID.
func GetSegmentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "segment id is required")
		}
		seg, err := deps.Segments.GetByID(c.UserContext(), id)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(seg)
	}
}

// SegmentGradesHandler returns the colored grade runs of a stored segment.
func SegmentGradesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "segment id is required")
		}
		segs, err := deps.Segments.GradeSegments(c.UserContext(), id)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(fiber.Map{
			"segment_id":     id,
			"grade_segments": segs,
		})
	}
}

type profileRequest struct {
	Coordinates [][2]float64 `json:"coordinates"` // [lon, lat] positions
}

// ElevationProfileHandler analyses an unsaved coordinate list.
// POST /v1/elevation/profile {"coordinates": [[lon, lat], ...]}
func ElevationProfileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req profileRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Coordinates) > maxProfilePoints {
			return errBadRequest(c, fmt.Sprintf("maximum %d coordinates allowed", maxProfilePoints))
		}

		points := make([]domain.GeoPoint, len(req.Coordinates))
		for i, pos := range req.Coordinates {
			points[i] = domain.GeoPoint{Lon: pos[0], Lat: pos[1]}
		}

		res, err := deps.Segments.Profile(c.UserContext(), points)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(res)
	}
}

// parseBBox reads "min_lon,min_lat,max_lon,max_lat".
func parseBBox(raw string) (domain.Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, fmt.Errorf("bbox must be min_lon,min_lat,max_lon,max_lat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("bbox value %q is not a number", p)
		}
		v[i] = f
	}
	b := domain.Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return domain.Bounds{}, fmt.Errorf("bbox minimum exceeds maximum")
	}
	if !(domain.GeoPoint{Lat: b.MinLat, Lon: b.MinLon}).Valid() || !(domain.GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}).Valid() {
		return domain.Bounds{}, fmt.Errorf("bbox out of range")
	}
	return b, nil
}
