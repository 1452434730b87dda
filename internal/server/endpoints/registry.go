package endpoints

import (
	"github.com/jackzampolin/picturebook/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{},

		// Narrative endpoints
		&CreateNarrativeEndpoint{},
		&GetNarrativeEndpoint{},
		&DeleteNarrativeEndpoint{},
		&IllustrateEndpoint{},

		// Task endpoints
		&GetTaskEndpoint{},
		&ListTasksEndpoint{},

		// Stored illustrations and static assets
		&BlobEndpoint{},
		&StaticEndpoint{},
	}
}
