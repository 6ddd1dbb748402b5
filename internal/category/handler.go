// internal/category/handler.go
package category

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templateFS embed.FS

type Handler struct {
	service   Service
	templates *template.Template
	logger    *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Handler{service: service, templates: tmpl, logger: logger}, nil
}

// Register mounts the category pages on r. Mutating routes are wrapped with
// the given middlewares.
func (h *Handler) Register(r chi.Router, mutating ...func(http.Handler) http.Handler) {
	r.Get("/", h.handleIndex)
	r.Get("/add", h.handleAddForm)
	r.Get("/category/{id}", h.handleDetails)
	r.Get("/category/{id}/edit", h.handleEditForm)
	r.Get("/category/{id}/history", h.handleHistory)
	r.Get("/healthz", h.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(mutating...)
		r.Post("/add", h.handleAdd)
		r.Post("/category/{id}/edit", h.handleEdit)
		r.Post("/category/{id}/toggle", h.handleToggle)
		r.Post("/category/{id}/delete", h.handleDelete)
	})
}

type formPage struct {
	Category    *Category
	Name        string
	Description string
	Error       string
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "index.html", map[string]any{
		"Categories": h.service.List(r.Context()),
	})
}

func (h *Handler) handleAddForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "add_category.html", formPage{})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := r.PostForm.Get("name")
	description := r.PostForm.Get("description")

	if _, err := h.service.Create(r.Context(), name, description); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.render(w, http.StatusBadRequest, "add_category.html", formPage{
				Name:        name,
				Description: description,
				Error:       verr.Error(),
			})
			return
		}
		h.fail(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleDetails(w http.ResponseWriter, r *http.Request) {
	c, ok := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		h.notFound(w)
		return
	}
	h.render(w, http.StatusOK, "category_details.html", map[string]any{"Category": c})
}

func (h *Handler) handleEditForm(w http.ResponseWriter, r *http.Request) {
	c, ok := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		h.notFound(w)
		return
	}
	h.render(w, http.StatusOK, "edit_category.html", formPage{
		Category:    c,
		Name:        c.Name(),
		Description: c.Description(),
	})
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	var name *string
	if values, ok := r.PostForm["name"]; ok && len(values) > 0 {
		name = &values[0]
	}
	description := r.PostForm.Get("description")

	if err := h.service.Update(r.Context(), id, name, &description); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			c, _ := h.service.Get(r.Context(), id)
			page := formPage{Category: c, Description: description, Error: verr.Error()}
			if name != nil {
				page.Name = *name
			}
			h.render(w, http.StatusBadRequest, "edit_category.html", page)
			return
		}
		h.fail(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Toggle(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := h.service.Get(r.Context(), id)
	if !ok {
		h.notFound(w)
		return
	}

	entries, err := h.service.History(r.Context(), id)
	if errors.Is(err, ErrHistoryUnavailable) {
		h.notFound(w)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	h.render(w, http.StatusOK, "history.html", map[string]any{
		"Category": c,
		"Entries":  entries,
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) notFound(w http.ResponseWriter) {
	h.render(w, http.StatusNotFound, "not_found.html", nil)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Error("request failed", "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("failed to render template", "template", name, "error", err)
	}
}
