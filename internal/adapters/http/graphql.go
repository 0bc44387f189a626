package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the meeting-point service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	metricsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TravelTimeMetrics",
		Fields: graphql.Fields{
			"max_travel_time":     &graphql.Field{Type: graphql.Float},
			"average_travel_time": &graphql.Field{Type: graphql.Float},
			"total_travel_time":   &graphql.Field{Type: graphql.Float},
			"min_travel_time":     &graphql.Field{Type: graphql.Float},
			"variance":            &graphql.Field{Type: graphql.Float},
			"valid_count":         &graphql.Field{Type: graphql.Int},
		},
	})

	pointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HypothesisPoint",
		Fields: graphql.Fields{
			"id":                  &graphql.Field{Type: graphql.String},
			"coordinate":          &graphql.Field{Type: coordinateType},
			"type":                &graphql.Field{Type: graphql.String},
			"phase":               &graphql.Field{Type: graphql.String},
			"score":               &graphql.Field{Type: graphql.Float},
			"travel_time_metrics": &graphql.Field{Type: metricsType},
		},
	})

	travelTimeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PerPersonTravelTime",
		Fields: graphql.Fields{
			"location_id":         &graphql.Field{Type: graphql.String},
			"travel_time_minutes": &graphql.Field{Type: graphql.Float},
		},
	})

	selectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Selection",
		Fields: graphql.Fields{
			"point_id":            &graphql.Field{Type: graphql.String},
			"phase":               &graphql.Field{Type: graphql.String},
			"goal":                &graphql.Field{Type: graphql.String},
			"max_travel_time":     &graphql.Field{Type: graphql.Float},
			"average_travel_time": &graphql.Field{Type: graphql.Float},
			"tie_break":           &graphql.Field{Type: graphql.String},
			"tied_count":          &graphql.Field{Type: graphql.Int},
		},
	})

	resultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MeetingPointResult",
		Fields: graphql.Fields{
			"run_id":                  &graphql.Field{Type: graphql.String},
			"optimal_point":           &graphql.Field{Type: pointType},
			"travel_times":            &graphql.Field{Type: graphql.NewList(travelTimeType)},
			"ranked_points":           &graphql.Field{Type: graphql.NewList(pointType)},
			"selection":               &graphql.Field{Type: selectionType},
			"total_hypothesis_points": &graphql.Field{Type: graphql.Int},
			"unreachable_points":      &graphql.Field{Type: graphql.Int},
			"api_call_count":          &graphql.Field{Type: graphql.Int},
			"cache_hits":              &graphql.Field{Type: graphql.Int},
			"travel_mode":             &graphql.Field{Type: graphql.String},
			"optimization_goal":       &graphql.Field{Type: graphql.String},
			"duration_ms":             &graphql.Field{Type: graphql.Int},
			"created_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r, ok := p.Source.(*domain.MeetingPointResult); ok {
						return r.CreatedAt.Format(time.RFC3339), nil
					}
					return nil, nil
				},
			},
		},
	})

	evaluationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "EvaluationResult",
		Fields: graphql.Fields{
			"run_id":                  &graphql.Field{Type: graphql.String},
			"ranked_points":           &graphql.Field{Type: graphql.NewList(pointType)},
			"selection":               &graphql.Field{Type: selectionType},
			"total_hypothesis_points": &graphql.Field{Type: graphql.Int},
			"unreachable_points":      &graphql.Field{Type: graphql.Int},
			"api_call_count":          &graphql.Field{Type: graphql.Int},
			"cache_hits":              &graphql.Field{Type: graphql.Int},
		},
	})

	locationInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "LocationInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"id":        &graphql.InputObjectFieldConfig{Type: graphql.String},
			"name":      &graphql.InputObjectFieldConfig{Type: graphql.String},
			"latitude":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"longitude": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})
	locationList := graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(locationInput)))

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"meetingPoint": &graphql.Field{
				Type:        resultType,
				Description: "Find the fairest meeting point for a group",
				Args: graphql.FieldConfigArgument{
					"locations":        &graphql.ArgumentConfig{Type: locationList},
					"travelMode":       &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.ModeDrivingCar)},
					"goal":             &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.GoalMinimax)},
					"enableRefinement": &graphql.ArgumentConfig{Type: graphql.Boolean},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					locs, err := locationsArg(p.Args["locations"])
					if err != nil {
						return nil, err
					}
					req := domain.MeetingPointRequest{
						Locations:        locs,
						TravelMode:       domain.TravelMode(p.Args["travelMode"].(string)),
						OptimizationGoal: domain.OptimizationGoal(p.Args["goal"].(string)),
					}
					if refine, ok := p.Args["enableRefinement"].(bool); ok {
						req.Options = &domain.SearchOverrides{EnableLocalRefinement: &refine}
					}
					res, err := deps.MeetingPoints.FindMeetingPoint(p.Context, req)
					if err != nil {
						return nil, gqlError(err)
					}
					return res, nil
				},
			},
			"evaluateCandidates": &graphql.Field{
				Type:        evaluationType,
				Description: "Score caller-supplied candidate points",
				Args: graphql.FieldConfigArgument{
					"locations":  &graphql.ArgumentConfig{Type: locationList},
					"candidates": &graphql.ArgumentConfig{Type: locationList},
					"travelMode": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.ModeDrivingCar)},
					"goal":       &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.GoalMinimax)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					locs, err := locationsArg(p.Args["locations"])
					if err != nil {
						return nil, err
					}
					cands, err := locationsArg(p.Args["candidates"])
					if err != nil {
						return nil, err
					}
					res, err := deps.MeetingPoints.EvaluateCandidates(p.Context, domain.EvaluationRequest{
						Locations:        locs,
						Candidates:       cands,
						TravelMode:       domain.TravelMode(p.Args["travelMode"].(string)),
						OptimizationGoal: domain.OptimizationGoal(p.Args["goal"].(string)),
					})
					if err != nil {
						return nil, gqlError(err)
					}
					return res, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// locationsArg converts a [LocationInput] argument into domain locations.
func locationsArg(v interface{}) ([]domain.Location, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("locations must be a list")
	}
	locs := make([]domain.Location, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("location %d is not an object", i)
		}
		lat, _ := m["latitude"].(float64)
		lon, _ := m["longitude"].(float64)
		id, _ := m["id"].(string)
		name, _ := m["name"].(string)
		locs = append(locs, domain.Location{
			ID:         id,
			Name:       name,
			Coordinate: domain.Coordinate{Latitude: lat, Longitude: lon},
		})
	}
	return locs, nil
}

// gqlError exposes only the code and user-facing message.
func gqlError(err error) error {
	return fmt.Errorf("%s: %s", domain.CodeOf(err), domain.UserMessage(err))
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
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
