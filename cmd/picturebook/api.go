package main

import (
	"os"

	"github.com/jackzampolin/picturebook/internal/api"
	"github.com/jackzampolin/picturebook/internal/server/endpoints"
)

// ownerEnv supplies the owner identity when --owner is not set.
const ownerEnv = "PICTUREBOOK_OWNER"

func resolveOwner() string {
	if ownerID != "" {
		return ownerID
	}
	return os.Getenv(ownerEnv)
}

func init() {
	// Every endpoint with a CLI counterpart becomes a command. Grouped
	// endpoints nest under their group, e.g. "picturebook narratives create".
	reg := api.NewRegistry()
	for _, ep := range endpoints.All() {
		reg.Register(ep)
	}
	rootCmd.AddCommand(reg.BuildCommands(getServerURL)...)
}
