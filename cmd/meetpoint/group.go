package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

// groupFile is the YAML layout accepted by solve and evaluate.
type groupFile struct {
	TravelMode       string          `yaml:"travel_mode"`
	OptimizationGoal string          `yaml:"optimization_goal"`
	Locations        []placeEntry    `yaml:"locations"`
	Candidates       []placeEntry    `yaml:"candidates"`
	Options          *overridesEntry `yaml:"options"`
}

type placeEntry struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

type overridesEntry struct {
	GridSize              *int     `yaml:"grid_size"`
	PaddingKm             *float64 `yaml:"padding_km"`
	TopM                  *int     `yaml:"top_m"`
	RefinementRadiusKm    *float64 `yaml:"refinement_radius_km"`
	FineGridResolution    *int     `yaml:"fine_grid_resolution"`
	DedupThresholdMeters  *float64 `yaml:"dedup_threshold_meters"`
	EnableLocalRefinement *bool    `yaml:"enable_local_refinement"`
}

func readGroup(r io.Reader) (*groupFile, error) {
	var g groupFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("parse group file: %w", err)
	}
	if len(g.Locations) == 0 {
		return nil, fmt.Errorf("group file has no locations")
	}
	return &g, nil
}

func toLocations(entries []placeEntry) []domain.Location {
	locs := make([]domain.Location, len(entries))
	for i, e := range entries {
		locs[i] = domain.Location{
			ID:         e.ID,
			Name:       e.Name,
			Coordinate: domain.Coordinate{Latitude: e.Lat, Longitude: e.Lon},
		}
	}
	return locs
}

// request builds a search request; flags that were set win over the file.
func (g *groupFile) request(mode, goal string, noRefine bool) domain.MeetingPointRequest {
	req := domain.MeetingPointRequest{
		Locations:        toLocations(g.Locations),
		TravelMode:       domain.TravelMode(pick(mode, g.TravelMode)),
		OptimizationGoal: domain.OptimizationGoal(pick(goal, g.OptimizationGoal)),
	}
	if g.Options != nil {
		req.Options = &domain.SearchOverrides{
			GridSize:              g.Options.GridSize,
			PaddingKm:             g.Options.PaddingKm,
			TopM:                  g.Options.TopM,
			RefinementRadiusKm:    g.Options.RefinementRadiusKm,
			FineGridResolution:    g.Options.FineGridResolution,
			DedupThresholdMeters:  g.Options.DedupThresholdMeters,
			EnableLocalRefinement: g.Options.EnableLocalRefinement,
		}
	}
	if noRefine {
		if req.Options == nil {
			req.Options = &domain.SearchOverrides{}
		}
		off := false
		req.Options.EnableLocalRefinement = &off
	}
	return req
}

func (g *groupFile) evaluation(mode, goal string) domain.EvaluationRequest {
	return domain.EvaluationRequest{
		Locations:        toLocations(g.Locations),
		Candidates:       toLocations(g.Candidates),
		TravelMode:       domain.TravelMode(pick(mode, g.TravelMode)),
		OptimizationGoal: domain.OptimizationGoal(pick(goal, g.OptimizationGoal)),
	}
}

func pick(flag, file string) string {
	if flag != "" {
		return flag
	}
	return file
}
