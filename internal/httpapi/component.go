// Package httpapi exposes the trigger service's HTTP surface: the status
// probe and the trigger CRUD/lifecycle routes listed in the external
// interfaces section this service implements.
package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/c360studio/triggers/internal/action"
	"github.com/c360studio/triggers/internal/identity"
	"github.com/c360studio/triggers/internal/poller"
	"github.com/c360studio/triggers/internal/store"
)

// maxRequestBodySize caps request bodies accepted by any handler in this
// package.
const maxRequestBodySize = 1 << 20 // 1 MB

// Component wires the trigger store and supervisor into an HTTP surface.
type Component struct {
	serviceName string
	store       store.Store
	supervisor  *poller.Supervisor
	identity    *identity.Client
	action      action.Client
	logger      *slog.Logger
}

// New creates a Component. serviceName is used to form the
// "/{svc}/status" alias route.
func New(serviceName string, st store.Store, sup *poller.Supervisor, id *identity.Client, ac action.Client, logger *slog.Logger) *Component {
	return &Component{
		serviceName: serviceName,
		store:       st,
		supervisor:  sup,
		identity:    id,
		action:      ac,
		logger:      logger,
	}
}

// Register attaches every route to mux, wrapped in the request-id and
// Bearer-auth middleware. The status route is exempt from auth.
func (c *Component) Register(mux *http.ServeMux) {
	mux.Handle("/", withRequestID(http.HandlerFunc(c.handleStatus)))
	mux.Handle("/"+strings.Trim(c.serviceName, "/")+"/status", withRequestID(http.HandlerFunc(c.handleStatus)))

	mux.Handle("/triggers", withRequestID(c.requireAuth(http.HandlerFunc(c.handleTriggersCollection))))
	mux.Handle("/triggers/", withRequestID(c.requireAuth(http.HandlerFunc(c.handleTriggerItem))))
}
