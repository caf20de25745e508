package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"procura/internal/api"
	"procura/internal/auth/models"
	"procura/internal/guard"
	"procura/internal/querycache"
	"procura/pkg/platform/httputil"
	request "procura/pkg/platform/middleware/request"
)

// view is one guarded portal page backed by a backend resource.
type view struct {
	name    string
	pattern string
	roles   []models.Role
	// key builds the backend query key from the request.
	key func(r *http.Request) []string
	// params carries query string parameters to the backend, if any.
	params func(r *http.Request) url.Values
}

func static(segments ...string) func(*http.Request) []string {
	return func(*http.Request) []string { return segments }
}

// views lists the portal pages and the least role each one needs.
var views = []view{
	{name: "dashboard", pattern: "/", key: static("dashboard", "stats")},
	{name: "requisitions", pattern: "/requisitions", roles: []models.Role{models.RoleField}, key: static("requisitions")},
	{name: "rfqs", pattern: "/rfqs", roles: []models.Role{models.RolePurchaser}, key: static("rfqs")},
	{name: "purchase-orders", pattern: "/purchase-orders", roles: []models.Role{models.RolePurchaser}, key: static("purchase-orders")},
	{name: "deliveries", pattern: "/deliveries", roles: []models.Role{models.RoleField}, key: static("deliveries")},
	{name: "invoices", pattern: "/invoices", roles: []models.Role{models.RoleAP}, key: static("invoices")},
	{name: "materials", pattern: "/materials", roles: []models.Role{models.RoleField}, key: static("materials")},
	{name: "vendors", pattern: "/vendors", roles: []models.Role{models.RolePurchaser}, key: static("vendors")},
	{name: "projects", pattern: "/projects", roles: []models.Role{models.RolePM}, key: static("projects")},
	{name: "project", pattern: "/projects/{id}", roles: []models.Role{models.RolePM},
		key: func(r *http.Request) []string { return []string{"projects", chi.URLParam(r, "id")} }},
	{name: "project-budget", pattern: "/projects/{id}/budget", roles: []models.Role{models.RolePM},
		key: func(r *http.Request) []string { return []string{"projects", chi.URLParam(r, "id"), "budget"} }},
	{name: "search", pattern: "/search", roles: []models.Role{models.RoleField}, key: static("search"),
		params: func(r *http.Request) url.Values { return url.Values{"q": {r.URL.Query().Get("q")}} }},
	{name: "admin-users", pattern: "/admin/users", roles: []models.Role{models.RoleAdmin}, key: static("admin", "users")},
}

// ViewResponse wraps a backend resource for the renderer.
type ViewResponse struct {
	View string          `json:"view"`
	User string          `json:"user,omitempty"`
	Data json.RawMessage `json:"data"`
}

// registerViews mounts every view behind its guard.
func (h *Handler) registerViews(r chi.Router) {
	for _, v := range views {
		r.With(h.guard.Require(v.roles...)).Get(v.pattern, h.serveView(v))
	}
}

func (h *Handler) serveView(v view) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := v.key(r)
		var params url.Values
		if v.params != nil {
			params = v.params(r)
		}

		data, err := h.load(ctx, key, params)
		if err != nil {
			h.logger.WarnContext(ctx, "view load failed",
				"view", v.name,
				"error", err,
				"request_id", request.GetRequestID(ctx),
			)
			httputil.WriteError(w, err)
			return
		}
		if data == nil {
			h.redirectToLogin(w, r)
			return
		}

		resp := ViewResponse{View: v.name, Data: *data}
		if user := guard.UserFromContext(ctx); user != nil {
			resp.User = user.DisplayName()
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// load reads a resource through the cache. A nil result means the session
// ended during the load.
func (h *Handler) load(ctx context.Context, key []string, params url.Values) (*json.RawMessage, error) {
	cacheKey := querycache.Key(key)
	if len(params) > 0 {
		cacheKey = append(append(querycache.Key{}, key...), "?"+params.Encode())
	}
	return querycache.FetchAs(ctx, h.cache, cacheKey, func(ctx context.Context) (*json.RawMessage, error) {
		return api.QueryFetchParams[json.RawMessage](ctx, h.client, key, params, api.On401ReturnNull)
	})
}
