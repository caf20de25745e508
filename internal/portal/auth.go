package portal

import (
	"net/http"
	"net/url"
	"strings"

	"procura/internal/auth/models"
	"procura/internal/auth/state"
	"procura/internal/platform/privacy"
	"procura/pkg/platform/httputil"
	request "procura/pkg/platform/middleware/request"
)

const loginPath = "/login"

// LoginView describes the login form to the renderer.
type LoginView struct {
	Fields        []string `json:"fields"`
	Action        string   `json:"action"`
	Next          string   `json:"next,omitempty"`
	Authenticated bool     `json:"authenticated"`
}

// LoginResponse is returned by a successful JSON login.
type LoginResponse struct {
	User models.AuthUser `json:"user"`
	Next string          `json:"next"`
}

// HandleLoginView implements GET /login.
func (h *Handler) HandleLoginView(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LoginView{
		Fields:        []string{"email", "password"},
		Action:        loginPath,
		Next:          safeNext(r.URL.Query().Get("next")),
		Authenticated: h.session.Snapshot().IsAuthenticated,
	})
}

// HandleLogin implements POST /login with a JSON or form body. Form posts are
// redirected to next on success; JSON posts get the user back.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.session.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "portal login failed",
			"error", err,
			"email", privacy.MaskEmail(req.Email),
			"client_ip", privacy.ClientIP(r),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	next := safeNext(r.FormValue("next"))
	if next == "" {
		next = "/"
	}
	if isForm(r) {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{User: result.User, Next: next})
}

// HandleLogout implements POST /logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "portal logout failed",
			"error", err,
			"request_id", request.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession implements GET /session.
func (h *Handler) HandleSession(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// HandleMe implements GET /me, loading the user if needed.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.session.User(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if user == nil {
		h.redirectToLogin(w, r)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state.Snapshot{User: user, IsAuthenticated: true})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, loginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
}

// safeNext keeps only same-origin absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}
