package auth

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"github.com/tahcohcat/voicepanel/config"
	"github.com/tahcohcat/voicepanel/internal/logger"
)

const (
	sessionName      = "voicepanel"
	keyPanelID       = "panel_id"
	keyAuthenticated = "authenticated"
)

var (
	Store        *sessions.CookieStore
	passwordHash []byte
	LoginPage    = "web/login.html"
)

func Init(cfg config.AuthConfig) {
	Store = sessions.NewCookieStore([]byte(cfg.SessionSecret))
	Store.Options.HttpOnly = true
	Store.Options.SameSite = http.SameSiteLaxMode
	passwordHash = []byte(cfg.PasswordHash)
}

// Enabled reports whether a login password is configured.
func Enabled() bool {
	return len(passwordHash) > 0
}

// HashPassword returns the bcrypt hash to put in auth.password_hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// PanelID returns the id of the caller's panel, issuing one on first
// contact.
func PanelID(w http.ResponseWriter, r *http.Request) string {
	session, _ := Store.Get(r, sessionName)
	if id, ok := session.Values[keyPanelID].(string); ok && id != "" {
		return id
	}

	id := uuid.NewString()
	session.Values[keyPanelID] = id
	if err := session.Save(r, w); err != nil {
		logger.New().WithError(err).Warn("failed to save panel session")
	}
	return id
}

func renderLogin(w http.ResponseWriter, data interface{}) {
	tmpl, err := template.ParseFiles(LoginPage)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	tmpl.Execute(w, data)
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !Enabled() {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		renderLogin(w, nil)
	case http.MethodPost:
		r.ParseForm()
		password := r.FormValue("password")

		if bcrypt.CompareHashAndPassword(passwordHash, []byte(password)) != nil {
			w.WriteHeader(http.StatusUnauthorized)
			renderLogin(w, map[string]string{"Error": "Invalid password"})
			return
		}

		session, _ := Store.Get(r, sessionName)
		session.Values[keyAuthenticated] = true
		session.Save(r, w)
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// LogoutHandler only accepts POST so a cross-site link cannot end the
// session.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, _ := Store.Get(r, sessionName)
	session.Values[keyAuthenticated] = false
	session.Save(r, w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// AuthMiddleware lets everything through when no password is configured.
// Otherwise API calls get 401 and pages redirect to the login form.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		session, _ := Store.Get(r, sessionName)
		if ok, _ := session.Values[keyAuthenticated].(bool); !ok {
			if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}
