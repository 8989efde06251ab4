package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/drawing"
	"github.com/gravelatlas/atlas/internal/pkg/geospatial"
)

// RenderMessage is sent to map clients for every change of a drawn line.
type RenderMessage struct {
	Op          string       `json:"op"` // "render" or "remove"
	Session     string       `json:"session"`
	Generation  uint64       `json:"generation"`
	Layer       string       `json:"layer"`
	Coordinates [][2]float64 `json:"coordinates,omitempty"` // [lon, lat]
	Polyline    string       `json:"polyline,omitempty"`
}

// LineRenderer implements ports.LineRenderer by publishing render messages
// on core NATS. Messages are fire-and-forget; a client that misses one
// resynchronises from the session snapshot.
type LineRenderer struct {
	conn *nats.Conn
}

func NewLineRenderer(conn *nats.Conn) *LineRenderer {
	return &LineRenderer{conn: conn}
}

func (r *LineRenderer) RenderLine(ctx context.Context, layerID string, coords []domain.GeoPoint) error {
	msg := RenderMessage{Op: "render", Layer: layerID, Polyline: geospatial.EncodePolyline(coords)}
	msg.Coordinates = make([][2]float64, len(coords))
	for i, p := range coords {
		msg.Coordinates[i] = [2]float64{p.Lon, p.Lat}
	}
	return r.publish(msg)
}

func (r *LineRenderer) RemoveLine(ctx context.Context, layerID string) error {
	return r.publish(RenderMessage{Op: "remove", Layer: layerID})
}

func (r *LineRenderer) publish(msg RenderMessage) error {
	subject, data, err := encodeRenderMessage(msg)
	if err != nil {
		return err
	}
	return r.conn.Publish(subject, data)
}

func encodeRenderMessage(msg RenderMessage) (string, []byte, error) {
	session, gen, ok := drawing.ParseLayerID(msg.Layer)
	if !ok {
		return "", nil, fmt.Errorf("render: malformed layer id %q", msg.Layer)
	}
	msg.Session, msg.Generation = session, gen

	data, err := json.Marshal(msg)
	if err != nil {
		return "", nil, err
	}
	return DrawSubject(session), data, nil
}
