// Package http holds the HTTP handlers owned by the service core: the health
// endpoints, the plain text banner on the base route, the Prometheus
// exposition and the store guard applied to route groups that need the
// database.
//
// Domain route groups (auth, rides, users) are collaborators mounted by the
// application; they are not implemented here.
//
// Handlers stay thin. Report construction lives in services.HealthService and
// error bodies come from the errors package.
package http
