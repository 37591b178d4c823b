package webapp

import (
	"encoding/json"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// Conversion represents a conversion record from the API
type Conversion struct {
	StormID      int     `json:"StormID"`
	ULID         string  `json:"ULID"`
	SourceName   string  `json:"SourceName"`
	Strategy     string  `json:"Strategy"`
	Status       string  `json:"Status"`
	Score        float64 `json:"Score"`
	QualityLevel string  `json:"QualityLevel"`
	Rounds       int     `json:"Rounds"`
	TokensUsed   int     `json:"TokensUsed"`
	Degraded     bool    `json:"Degraded"`
	Error        string  `json:"Error"`
	CreatedAt    string  `json:"CreatedAt"`
}

// PaginatedResponse represents the paginated API response
type PaginatedResponse struct {
	Conversions []Conversion `json:"conversions"`
	Page        int          `json:"page"`
	PageSize    int          `json:"pageSize"`
	TotalCount  int          `json:"totalCount"`
	TotalPages  int          `json:"totalPages"`
	HasNext     bool         `json:"hasNext"`
	HasPrevious bool         `json:"hasPrevious"`
}

// HomePage displays the latest conversions with pagination
type HomePage struct {
	app.Compo
	conversions []Conversion
	currentPage int
	totalPages  int
	totalCount  int
	hasNext     bool
	hasPrevious bool
	loading     bool
	error       string
}

// OnMount is called when the component is mounted
func (h *HomePage) OnMount(ctx app.Context) {
	h.currentPage = 1
	h.loading = true
	h.fetchConversions(ctx, 1)
}

// fetchConversions fetches conversions for a specific page
func (h *HomePage) fetchConversions(ctx app.Context, page int) {
	ctx.Async(func() {
		url := BuildAPIURL(fmt.Sprintf("/api/conversions/latest?page=%d", page))
		res := app.Window().Call("fetch", url)

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
			if len(args) == 0 {
				return nil
			}
			response := args[0]

			response.Call("json").Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
				if len(args) == 0 {
					return nil
				}

				jsonData := args[0]
				jsonStr := app.Window().Get("JSON").Call("stringify", jsonData).String()

				var resp PaginatedResponse
				ctx.Dispatch(func(ctx app.Context) {
					if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
						h.error = fmt.Sprintf("Failed to parse response: %v", err)
					} else {
						h.conversions = resp.Conversions
						h.currentPage = resp.Page
						h.totalPages = resp.TotalPages
						h.totalCount = resp.TotalCount
						h.hasNext = resp.HasNext
						h.hasPrevious = resp.HasPrevious
					}
					h.loading = false
				})

				return nil
			}))

			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
			ctx.Dispatch(func(ctx app.Context) {
				h.error = "Network error"
				h.loading = false
			})
			return nil
		}))
	})
}

// onPageChange handles page navigation
func (h *HomePage) onPageChange(page int) func(ctx app.Context, e app.Event) {
	return func(ctx app.Context, e app.Event) {
		e.PreventDefault()
		h.loading = true
		h.error = ""
		h.fetchConversions(ctx, page)
	}
}

// Render renders the home page
func (h *HomePage) Render() app.UI {
	var content app.UI

	if h.loading {
		content = app.Div().Class("loading").Body(app.Text("Loading..."))
	} else if h.error != "" {
		content = app.Div().Class("error").Body(app.Text("Error: " + h.error))
	} else if len(h.conversions) == 0 {
		content = app.Div().Class("no-results").Body(app.Text("No conversions yet. Upload a PDF on the Convert page."))
	} else {
		content = app.Div().Class("conversion-grid").Body(
			app.Range(h.conversions).Slice(func(i int) app.UI {
				conv := h.conversions[i]
				return &ConversionCard{Conversion: conv}
			}),
		)
	}

	return app.Div().
		Class("home-page").
		Body(
			app.H2().Text("Latest Conversions"),
			app.P().Class("page-info").Text(
				fmt.Sprintf("Showing page %d of %d (%d total conversions)",
					h.currentPage, h.totalPages, h.totalCount),
			),
			content,
			h.renderPagination(),
		)
}

// renderPagination renders the pagination controls
func (h *HomePage) renderPagination() app.UI {
	if h.totalPages <= 1 {
		return app.Div() // No pagination needed
	}

	return app.Div().Class("pagination").Body(
		// Previous button
		app.Button().
			Class("pagination-btn").
			Disabled(!h.hasPrevious || h.loading).
			OnClick(h.onPageChange(h.currentPage - 1)).
			Body(app.Text("← Previous")),

		// Page info
		app.Span().Class("pagination-info").Body(
			app.Text(fmt.Sprintf("Page %d of %d", h.currentPage, h.totalPages)),
		),

		// Next button
		app.Button().
			Class("pagination-btn").
			Disabled(!h.hasNext || h.loading).
			OnClick(h.onPageChange(h.currentPage + 1)).
			Body(app.Text("Next →")),

		// Jump to first/last
		app.Div().Class("pagination-jump").Body(
			app.Button().
				Class("pagination-btn-small").
				Disabled(h.currentPage == 1 || h.loading).
				OnClick(h.onPageChange(1)).
				Body(app.Text("First")),
			app.Button().
				Class("pagination-btn-small").
				Disabled(h.currentPage == h.totalPages || h.loading).
				OnClick(h.onPageChange(h.totalPages)).
				Body(app.Text("Last")),
		),
	)
}

// ConversionCard displays a single conversion card
type ConversionCard struct {
	app.Compo
	Conversion Conversion
}

// Render renders the conversion card
func (d *ConversionCard) Render() app.UI {
	conv := d.Conversion
	return app.Div().
		Class("conversion-card").
		Body(
			app.Div().Class("conversion-icon").Body(
				app.Text("📄"),
			),
			app.Div().Class("conversion-info").Body(
				app.H3().Text(conv.SourceName),
				app.P().Class("conversion-status").Body(
					app.Span().Class("status-badge status-"+conv.Status).
						Body(app.Text(conv.Status)),
					app.Text(" "),
					d.renderQualityBadge(),
				),
				app.P().Class("conversion-date").Text("Requested: "+conv.CreatedAt),
				d.renderActions(),
			),
		)
}

// renderQualityBadge shows the score and traffic-light quality level once scored
func (d *ConversionCard) renderQualityBadge() app.UI {
	conv := d.Conversion
	if conv.Status != "completed" || conv.QualityLevel == "" {
		return app.Span()
	}
	label := fmt.Sprintf("%.2f %s", conv.Score, conv.QualityLevel)
	if conv.Degraded {
		label += " (degraded)"
	}
	return app.Span().
		Class("quality-badge quality-"+conv.QualityLevel).
		Body(app.Text(label))
}

// renderActions shows the download and artifact links for finished conversions
func (d *ConversionCard) renderActions() app.UI {
	conv := d.Conversion
	if conv.Status == "failed" {
		return app.P().Class("conversion-error").Text("Failed: " + conv.Error)
	}
	if conv.Status != "completed" {
		return app.Div()
	}
	return app.Div().Class("conversion-actions").Body(
		app.A().
			Href(BuildAPIURL("/api/conversion/"+conv.ULID+"/download")).
			Class("conversion-link").
			Body(app.Text("Download DOCX")),
		app.A().
			Href(BuildAPIURL("/api/conversion/"+conv.ULID+"/artifacts")).
			Class("conversion-link").
			Target("_blank").
			Body(app.Text("Artifacts")),
	)
}
