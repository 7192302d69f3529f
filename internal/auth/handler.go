package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-app/gatehouse/internal/shared"
	"github.com/gatehouse-app/gatehouse/internal/view"
)

// WelcomeMailer enqueues the post-registration welcome email. A nil mailer
// disables the feature without affecting registration.
type WelcomeMailer interface {
	EnqueueWelcome(ctx context.Context, to, name string) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	limiter   *LoginLimiter
	mailer    WelcomeMailer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, limiter *LoginLimiter, mailer WelcomeMailer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		sessions:  sessions,
		csrf:      csrf,
		limiter:   limiter,
		mailer:    mailer,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
}

// Canonical form field names. The register and login forms share this one
// contract; there is deliberately no second route with divergent names.
type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type registerForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	FullName string `validate:"required"`
}

type loginPageData struct {
	Form       loginForm
	Errors     map[string]string
	RedirectTo string
}

type registerPageData struct {
	Form   registerForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.User() != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := loginPageData{RedirectTo: r.URL.Query().Get("redirectTo")}
	h.render(w, r, "pages/login.html", "Log in", data, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	redirectTo := r.PostFormValue("redirectTo")
	errs := h.validate(form)

	if len(errs) == 0 {
		ip := clientIP(r)
		if h.limiter != nil {
			locked, err := h.limiter.Check(r.Context(), ip)
			if err != nil {
				h.logger.Warn("login limiter check", slog.Any("error", err))
			} else if locked > 0 {
				errs["general"] = "Too many failed attempts. Please try again later."
				h.renderLoginError(w, r, form, redirectTo, errs, http.StatusTooManyRequests)
				return
			}
		}

		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err != nil {
			// One message for unknown email and wrong password alike.
			errs["general"] = "Incorrect email or password"
			if h.limiter != nil {
				if _, lerr := h.limiter.RecordFailure(r.Context(), ip); lerr != nil {
					h.logger.Warn("login limiter record", slog.Any("error", lerr))
				}
			}
		} else {
			if h.limiter != nil {
				if lerr := h.limiter.Reset(r.Context(), ip); lerr != nil {
					h.logger.Warn("login limiter reset", slog.Any("error", lerr))
				}
			}
			if sess != nil {
				sess.SetUser(user.ID)
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back!"})
			}
			http.Redirect(w, r, sanitizeRedirect(redirectTo), http.StatusSeeOther)
			return
		}
	}

	h.renderLoginError(w, r, form, redirectTo, errs, http.StatusBadRequest)
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request, form loginForm, redirectTo string, errs map[string]string, status int) {
	form.Password = ""
	data := loginPageData{Form: form, Errors: errs, RedirectTo: redirectTo}
	h.render(w, r, "pages/login.html", "Log in", data, status)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.User() != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/register.html", "Register", registerPageData{}, http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := registerForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		FullName: r.PostFormValue("fullName"),
	}
	errs := h.validate(form)

	if len(errs) == 0 {
		user, err := h.service.Register(r.Context(), form.Email, form.Password, form.FullName)
		switch {
		case errors.Is(err, shared.ErrEmailTaken):
			errs["email"] = "User already exists with that email"
		case err != nil:
			h.logger.Error("register user", slog.Any("error", err))
			// Echo email and full name so the form can be retried; the
			// password is never sent back.
			errs["general"] = "Something went wrong trying to create a new user."
		default:
			if sess != nil {
				sess.SetUser(user.ID)
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Account created. Welcome!"})
			}
			if h.mailer != nil {
				if merr := h.mailer.EnqueueWelcome(r.Context(), user.Email, user.FullName); merr != nil {
					h.logger.Warn("enqueue welcome email", slog.Any("error", merr))
				}
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}

	form.Password = ""
	h.render(w, r, "pages/register.html", "Register", registerPageData{Form: form, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Logout always succeeds, whether or not a session existed.
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[strings.ToLower(fieldErr.Field()[:1])+fieldErr.Field()[1:]] = fieldMessage(fieldErr)
			}
		} else {
			errs["general"] = "Form not submitted correctly."
		}
	}
	return errs
}

func fieldMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return "Must be at least " + fieldErr.Param() + " characters"
	default:
		return "Invalid value"
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken := ""
	if h.csrf != nil {
		csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

// sanitizeRedirect confines post-login redirects to same-site paths.
func sanitizeRedirect(target string) string {
	if target == "" {
		return "/"
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return "/"
	}
	if u, err := url.Parse(target); err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}
	return target
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleRegisterForTest exposes the POST handler for tests.
func (h *Handler) HandleRegisterForTest(w http.ResponseWriter, r *http.Request) {
	h.handleRegister(w, r)
}

// HandleLogoutForTest exposes the POST handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
