package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"intsync/internal/backend"
	"intsync/internal/catalog"
)

type recordRoutes[T catalog.Record] struct {
	h    *Handler
	kind backend.Kind
}

type createRecordResponse[T catalog.Record] struct {
	Record T   `json:"record"`
	Items  []T `json:"items"`
}

// mountCatalog wires the JSON CRUD endpoints and the list page of one
// backend collection.
func mountCatalog[T catalog.Record](r chi.Router, h *Handler, kind backend.Kind) {
	routes := recordRoutes[T]{h: h, kind: kind}
	base := "/api/" + kind.Plural
	r.Get(base, routes.list)
	r.Post(base, routes.create)
	r.Get(base+"/{id}", routes.get)
	r.Delete(base+"/{id}", routes.delete)

	r.Get("/"+kind.Plural, routes.page)
	r.Post("/"+kind.Plural+"/{id}/delete", routes.pageDelete)
}

func (rr recordRoutes[T]) view() *catalog.View[T] {
	return catalog.NewView(catalog.FromBackend[T](rr.h.backend, rr.kind), rr.h.logger.With().Str("kind", rr.kind.Plural).Logger())
}

func (rr recordRoutes[T]) list(w http.ResponseWriter, r *http.Request) {
	items, err := rr.view().Load(r.Context())
	if err != nil {
		rr.h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (rr recordRoutes[T]) get(w http.ResponseWriter, r *http.Request) {
	record, err := backend.Get[T](r.Context(), rr.h.backend, rr.kind, chi.URLParam(r, "id"))
	if err != nil {
		rr.h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rr recordRoutes[T]) create(w http.ResponseWriter, r *http.Request) {
	var record T
	if !decodeRequest(w, r, &record) {
		return
	}
	view := rr.view()
	created, err := view.Create(r.Context(), record, nil)
	if err != nil {
		rr.h.fail(w, r, err)
		return
	}
	rr.h.recordAudit(r, rr.kind.Singular+".create", rr.kind.Singular, created.RecordID(), "")
	writeJSON(w, http.StatusOK, createRecordResponse[T]{Record: created, Items: view.Items()})
}

func (rr recordRoutes[T]) delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := rr.view().Delete(r.Context(), id); err != nil {
		rr.h.fail(w, r, err)
		return
	}
	rr.h.recordAudit(r, rr.kind.Singular+".delete", rr.kind.Singular, id, "")
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (rr recordRoutes[T]) page(w http.ResponseWriter, r *http.Request) {
	view := rr.view()
	data := recordsPage{Kind: rr.kind.Plural, Form: formFields[T]()}
	if _, err := view.Load(r.Context()); err != nil {
		data.Error = "Could not load " + rr.kind.Plural + " from the backend."
	}
	data.Rows = recordRows(view.Items())
	rr.h.renderPage(w, r, http.StatusOK, "records", data)
}

// pageDelete removes one record and re-renders the list it was deleted from
// without fetching it again.
func (rr recordRoutes[T]) pageDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	view := rr.view()
	data := recordsPage{Kind: rr.kind.Plural, Form: formFields[T]()}
	if _, err := view.Load(r.Context()); err != nil {
		data.Error = "Could not load " + rr.kind.Plural + " from the backend."
	} else if err := view.Delete(r.Context(), id); err != nil {
		data.Error = "Could not delete " + rr.kind.Singular + " " + id + "."
	} else {
		rr.h.recordAudit(r, rr.kind.Singular+".delete", rr.kind.Singular, id, "")
		data.Notice = "Deleted " + rr.kind.Singular + " " + id + "."
	}
	data.Rows = recordRows(view.Items())
	rr.h.renderPage(w, r, http.StatusOK, "records", data)
}
