package webapp

import (
	"encoding/json"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// AboutInfo represents the about information from the API
type AboutInfo struct {
	Version          string  `json:"version"`
	SofficePath      string  `json:"sofficePath"`
	VisionConfigured bool    `json:"visionConfigured"`
	DatabaseType     string  `json:"databaseType"`
	DatabaseHost     string  `json:"databaseHost"`
	DatabasePort     string  `json:"databasePort"`
	DatabaseName     string  `json:"databaseName"`
	UploadPath       string  `json:"uploadPath"`
	OutputPath       string  `json:"outputPath"`
	ArtifactPath     string  `json:"artifactPath"`
	Strategy         string  `json:"strategy"`
	SSIMThreshold    float64 `json:"ssimThreshold"`
	MaxRounds        int     `json:"maxRounds"`
}

// AboutPage displays information about the application
type AboutPage struct {
	app.Compo
	aboutInfo AboutInfo
	loading   bool
	error     string
}

// OnMount is called when the component is mounted
func (a *AboutPage) OnMount(ctx app.Context) {
	a.loading = true
	a.fetchAboutInfo(ctx)
}

// fetchAboutInfo fetches the about information from the API
func (a *AboutPage) fetchAboutInfo(ctx app.Context) {
	ctx.Async(func() {
		res := app.Window().Call("fetch", BuildAPIURL("/api/about"))

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

				ctx.Dispatch(func(ctx app.Context) {
					if err := json.Unmarshal([]byte(jsonStr), &a.aboutInfo); err != nil {
						a.error = fmt.Sprintf("Failed to parse response: %v", err)
					}
					a.loading = false
				})

				return nil
			}))

			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
			ctx.Dispatch(func(ctx app.Context) {
				a.error = "Network error"
				a.loading = false
			})
			return nil
		}))
	})
}

// Render renders the about page
func (a *AboutPage) Render() app.UI {
	if a.loading {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About godocx"),
			app.Div().Class("loading").Body(app.Text("Loading...")),
		)
	}

	if a.error != "" {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About godocx"),
			app.Div().Class("error").Body(app.Text("Error: "+a.error)),
		)
	}

	return app.Div().Class("about-page").Body(
		app.H2().Text("About godocx"),
		app.Div().Class("about-content").Body(
			app.Div().Class("about-section").Body(
				app.H3().Text("Application Information"),
				app.Div().Class("info-grid").Body(
					a.renderInfoItem("Version", a.aboutInfo.Version),
					a.renderInfoItem("Database", a.getDatabaseDisplay()),
					a.renderInfoItem("Vision API", a.getVisionStatus()),
					a.renderInfoItem("Rendering", a.getRenderingStatus()),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Quality Loop"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Default Strategy: "),
						app.Text(a.getStrategyDisplay()),
					),
					app.P().Body(
						app.Strong().Text("Similarity Threshold: "),
						app.Text(fmt.Sprintf("%.2f", a.aboutInfo.SSIMThreshold)),
					),
					app.P().Body(
						app.Strong().Text("Max Correction Rounds: "),
						app.Text(fmt.Sprintf("%d", a.aboutInfo.MaxRounds)),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Database Configuration"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Database Type: "),
						app.Text(a.getDatabaseDisplay()),
					),
					app.P().Body(
						app.Strong().Text("Host: "),
						app.Text(a.aboutInfo.DatabaseHost),
					),
					app.P().Body(
						app.Strong().Text("Port: "),
						app.Text(a.aboutInfo.DatabasePort),
					),
					app.P().Body(
						app.Strong().Text("Database Name: "),
						app.Text(a.aboutInfo.DatabaseName),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Storage"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Upload Folder: "),
						app.Text(a.aboutInfo.UploadPath),
					),
					app.P().Body(
						app.Strong().Text("Output Folder: "),
						app.Text(a.aboutInfo.OutputPath),
					),
					app.P().Body(
						app.Strong().Text("Artifact Folder: "),
						app.Text(a.aboutInfo.ArtifactPath),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("About godocx"),
				app.P().Text("godocx converts PDF documents to editable Word documents, built with Go and WebAssembly."),
				app.P().Text("Every conversion is rendered back to images and compared against the source, so each result carries a visual similarity score and a traffic-light quality level."),
			),
		),
	)
}

// renderInfoItem creates an info item display
func (a *AboutPage) renderInfoItem(label, value string) app.UI {
	return app.Div().Class("info-item").Body(
		app.Div().Class("info-label").Body(app.Text(label)),
		app.Div().Class("info-value").Body(app.Text(value)),
	)
}

// getDatabaseDisplay returns a user-friendly database display name
func (a *AboutPage) getDatabaseDisplay() string {
	switch a.aboutInfo.DatabaseType {
	case "postgres":
		return "PostgreSQL"
	case "cockroachdb":
		return "CockroachDB"
	case "sqlite":
		return "SQLite"
	case "ephemeral":
		return "Ephemeral PostgreSQL"
	default:
		return a.aboutInfo.DatabaseType
	}
}

// getVisionStatus returns the vision API status as a user-friendly string
func (a *AboutPage) getVisionStatus() string {
	if a.aboutInfo.VisionConfigured {
		return "Enabled"
	}
	return "Disabled"
}

// getRenderingStatus reports whether DOCX rendering is available
func (a *AboutPage) getRenderingStatus() string {
	if a.aboutInfo.SofficePath != "" {
		return "Enabled"
	}
	return "Disabled"
}

// getStrategyDisplay returns a user-friendly strategy name
func (a *AboutPage) getStrategyDisplay() string {
	switch a.aboutInfo.Strategy {
	case "A":
		return "A - iterative correction"
	case "B":
		return "B - single layout advisory"
	default:
		return a.aboutInfo.Strategy
	}
}
