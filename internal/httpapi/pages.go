package httpapi

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"intsync/internal/models"
	"intsync/internal/steps"
	"intsync/internal/whatsapp"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageNames = []string{"login", "signup", "about", "contact", "tickets", "ticket", "records", "whatsapp", "audit"}

type pages struct {
	templates map[string]*template.Template
}

type layoutData struct {
	Title string
	User  *models.User
	Page  string
	Data  interface{}
}

type authPage struct {
	Error string
	Next  string
}

type recordsPage struct {
	Kind   string
	Rows   []recordRow
	Form   []formField
	Error  string
	Notice string
}

// formField is one input of the create form on a records page. List fields
// take comma separated values.
type formField struct {
	Name     string
	List     bool
	Required bool
}

type recordRow struct {
	ID     string
	Fields []recordField
}

type recordField struct {
	Name  string
	Value string
}

type ticketsPage struct {
	Filter models.TicketFilter
	Result models.TicketPage
	Error  string
}

type whatsappPage struct {
	Snapshot whatsapp.Snapshot
}

type auditPage struct {
	Entries []models.AuditEntry
	Error   string
}

func newPages() *pages {
	funcs := template.FuncMap{
		"join":      strings.Join,
		"stepLabel": stepLabel,
		"inc":       func(n int) int { return n + 1 },
		"dec":       func(n int) int { return n - 1 },
		"title":     titleCase,
		"qrSrc":     qrSrc,
	}
	p := &pages{templates: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		p.templates[name] = template.Must(template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html"))
	}
	return p
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func (h *Handler) mountPages(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/tickets", http.StatusSeeOther)
	})
	r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
		h.renderPage(w, r, http.StatusOK, "login", authPage{Next: r.URL.Query().Get("next")})
	})
	r.Get("/signup", func(w http.ResponseWriter, r *http.Request) {
		h.renderPage(w, r, http.StatusOK, "signup", authPage{Next: r.URL.Query().Get("next")})
	})
	r.Get("/about", func(w http.ResponseWriter, r *http.Request) {
		h.renderPage(w, r, http.StatusOK, "about", nil)
	})
	r.Get("/contact", func(w http.ResponseWriter, r *http.Request) {
		h.renderPage(w, r, http.StatusOK, "contact", nil)
	})
	r.Get("/tickets", h.handleTicketsPage)
	r.Get("/tickets/{id}", h.handleTicketPage)
	r.Get("/whatsapp", h.handleWhatsAppPage)
	r.Get("/audit", h.handleAuditPage)
}

func (h *Handler) handleTicketsPage(w http.ResponseWriter, r *http.Request) {
	data := ticketsPage{Filter: ticketFilterFromQuery(r.URL.Query())}
	result, err := h.backend.ListTickets(r.Context(), data.Filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("load tickets page")
		data.Error = "Could not load tickets from the backend."
	}
	data.Result = result
	h.renderPage(w, r, http.StatusOK, "tickets", data)
}

func (h *Handler) handleTicketPage(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.backend.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, _, msg := mapError(err)
		http.Error(w, msg, status)
		return
	}
	h.renderPage(w, r, http.StatusOK, "ticket", newTicketDetail(ticket))
}

func (h *Handler) handleWhatsAppPage(w http.ResponseWriter, r *http.Request) {
	data := whatsappPage{}
	if h.whatsapp != nil {
		data.Snapshot = h.whatsapp.Poller().Snapshot()
	}
	h.renderPage(w, r, http.StatusOK, "whatsapp", data)
}

func (h *Handler) handleAuditPage(w http.ResponseWriter, r *http.Request) {
	data := auditPage{}
	entries, err := h.store.ListAudit(r.Context(), auditFilterFromRequest(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("load audit page")
		data.Error = "Could not load the audit log."
	}
	data.Entries = entries
	h.renderPage(w, r, http.StatusOK, "audit", data)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	tmpl, ok := h.pages.templates[name]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	layout := layoutData{Title: titleCase(name), Page: name, Data: data}
	if info, ok := authFromContext(r.Context()); ok {
		user := info.User
		layout.User = &user
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", layout); err != nil {
		h.logger.Error().Err(err).Str("page", name).Msg("render page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// recordRows flattens records into table rows. Name-like columns come first,
// the rest alphabetically.
func recordRows[T interface{ RecordID() string }](items []T) []recordRow {
	rows := make([]recordRow, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		delete(fields, "id")
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			pi, pj := columnRank(names[i]), columnRank(names[j])
			if pi != pj {
				return pi < pj
			}
			return names[i] < names[j]
		})
		row := recordRow{ID: item.RecordID()}
		for _, name := range names {
			row.Fields = append(row.Fields, recordField{Name: name, Value: fieldValue(fields[name])})
		}
		rows = append(rows, row)
	}
	return rows
}

func columnRank(name string) int {
	switch name {
	case "name", "key":
		return 0
	case "company", "email", "phone":
		return 1
	default:
		return 2
	}
}

func fieldValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fieldValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func stepLabel(key string) string {
	step, err := steps.Parse(key)
	if err != nil {
		return key
	}
	return step.Label()
}

// qrSrc lets image data URLs from the backend through html/template's URL
// filter. Other payloads are rendered as text.
func qrSrc(payload string) template.URL {
	if strings.HasPrefix(payload, "data:image/") {
		return template.URL(payload)
	}
	return ""
}

func titleCase(value string) string {
	value = strings.ReplaceAll(value, "_", " ")
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

// formFields lists the JSON fields a new record of type T can carry, in
// declaration order. Fields without omitempty are required.
func formFields[T any]() []formField {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	fields := make([]formField, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" || name == "id" {
			continue
		}
		switch field.Type.Kind() {
		case reflect.String:
			fields = append(fields, formField{Name: name, Required: !strings.Contains(opts, "omitempty")})
		case reflect.Slice:
			if field.Type.Elem().Kind() == reflect.String {
				fields = append(fields, formField{Name: name, List: true, Required: !strings.Contains(opts, "omitempty")})
			}
		}
	}
	return fields
}
