package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// buildSchema creates the read-only segments schema.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	profilePointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ProfilePoint",
		Fields: graphql.Fields{
			"distance_km":      &graphql.Field{Type: graphql.Float},
			"elevation_meters": &graphql.Field{Type: graphql.Float},
		},
	})

	gradeSegmentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GradeSegment",
		Fields: graphql.Fields{
			"start_index":   &graphql.Field{Type: graphql.Int},
			"end_index":     &graphql.Field{Type: graphql.Int},
			"grade_percent": &graphql.Field{Type: graphql.Float},
			"bucket": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					if gs, ok := p.Source.(domain.GradeSegment); ok {
						return int(gs.Bucket), nil
					}
					return nil, nil
				},
			},
			"points": &graphql.Field{Type: graphql.NewList(profilePointType)},
		},
	})

	segmentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Segment",
		Fields: graphql.Fields{
			"id":                    &graphql.Field{Type: graphql.String},
			"title":                 &graphql.Field{Type: graphql.String},
			"polyline":              &graphql.Field{Type: graphql.String},
			"distance_meters":       &graphql.Field{Type: graphql.Float},
			"elevation_gain_meters": &graphql.Field{Type: graphql.Float},
			"elevation_loss_meters": &graphql.Field{Type: graphql.Float},
			"enriched":              &graphql.Field{Type: graphql.Boolean},
			"coordinates":           &graphql.Field{Type: graphql.NewList(geoPointType)},
			"elevation_profile":     &graphql.Field{Type: graphql.NewList(profilePointType)},
			"created_at":            &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"segments": &graphql.Field{
				Type:        graphql.NewList(segmentType),
				Description: "Stored segments, newest first",
				Args: graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					limit, _ := p.Args["limit"].(int)
					offset, _ := p.Args["offset"].(int)
					segs, _, err := deps.Segments.List(p.Context, nil, offset, limit)
					return segs, err
				},
			},
			"segment": &graphql.Field{
				Type:        segmentType,
				Description: "Get a segment by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					id, _ := p.Args["id"].(string)
					return deps.Segments.GetByID(p.Context, id)
				},
			},
			"gradeSegments": &graphql.Field{
				Type:        graphql.NewList(gradeSegmentType),
				Description: "Colored grade runs of a stored segment",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					id, _ := p.Args["id"].(string)
					return deps.Segments.GradeSegments(p.Context, id)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
