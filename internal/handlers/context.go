package handlers

import (
	"net/http"

	"github.com/devpulse/sentiment-api/internal/authz"
	"github.com/devpulse/sentiment-api/internal/models"
)

func actorOrSystem(r *http.Request) string {
	if actor, ok := authz.ActorFromRequest(r); ok {
		return actor
	}
	return models.SystemActor
}
