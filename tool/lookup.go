package tool

import "context"

// Names of the lookup tools agents resolve from a Registry.
const (
	SchedulingToolName = "scheduling"
	GeoToolName        = "geo"
	MediaToolName      = "media"
)

// Operation names of the lookup tools.
const (
	OpFindSlots = "find_slots"
	OpNearby    = "nearby"
	OpSearch    = "search"
)

// NewSchedulingTool exposes a calendar lookup. find receives the validated
// args ("subject", optional "days") and returns free study slots.
func NewSchedulingTool(find Handler) *FunctionTool {
	return NewFunctionTool(SchedulingToolName, "Find free time slots for study sessions").
		Handle(OpFindSlots, `{
			"type": "object",
			"required": ["subject"],
			"properties": {
				"subject": {"type": "string", "minLength": 1},
				"days": {"type": "integer", "minimum": 1, "maximum": 31}
			}
		}`, find)
}

// NewGeoTool exposes a geospatial lookup for nearby community places.
func NewGeoTool(nearby Handler) *FunctionTool {
	return NewFunctionTool(GeoToolName, "Find community places and events near a location").
		Handle(OpNearby, `{
			"type": "object",
			"required": ["location"],
			"properties": {
				"location": {"type": "string", "minLength": 1},
				"interest": {"type": "string"},
				"radius_km": {"type": "number", "exclusiveMinimum": 0}
			}
		}`, nearby)
}

// NewMediaTool exposes a video/media search.
func NewMediaTool(search Handler) *FunctionTool {
	return NewFunctionTool(MediaToolName, "Search for supportive or educational media").
		Handle(OpSearch, `{
			"type": "object",
			"required": ["query"],
			"properties": {
				"query": {"type": "string", "minLength": 1},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 25}
			}
		}`, search)
}

// Static returns a Handler that always answers v. Useful for offline demos.
func Static(v any) Handler {
	return func(ctx context.Context, _ map[string]any) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return v, nil
	}
}
