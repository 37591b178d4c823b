package webapp

import (
	"encoding/json"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// ConvertPage uploads a PDF and starts a conversion
type ConvertPage struct {
	app.Compo
	strategy string
	running  bool
	result   string
	error    string
}

type convertResponse struct {
	ULID      string `json:"ulid"`
	JobID     string `json:"jobId"`
	Duplicate bool   `json:"duplicate"`
	Status    string `json:"status"`
}

// Render renders the convert page
func (c *ConvertPage) Render() app.UI {
	buttonText := "Convert to DOCX"
	if c.running {
		buttonText = "Converting..."
	}

	return app.Div().
		Class("convert-page").
		Body(
			app.H2().Text("Convert a PDF"),
			app.P().Text("Choose a PDF file and a quality strategy. The converted DOCX and its quality score will appear on the home page."),

			app.Div().Class("convert-controls").Body(
				app.Input().
					Type("file").
					ID("pdf-file").
					Accept(".pdf"),
				app.Select().
					ID("strategy-select").
					OnChange(c.onStrategyChange).
					Body(
						app.Option().Value("B").Selected(c.strategy != "A").Body(app.Text("Strategy B - single layout advisory (cheaper)")),
						app.Option().Value("A").Selected(c.strategy == "A").Body(app.Text("Strategy A - iterative correction (higher fidelity)")),
					),
				app.Button().
					Class("btn-primary").
					Disabled(c.running).
					OnClick(c.onConvertClick).
					Body(app.Text(buttonText)),
			),

			c.renderStatus(),
		)
}

// renderStatus renders the status section
func (c *ConvertPage) renderStatus() app.UI {
	if c.running {
		return app.Div().Class("loading").Body(
			app.Text("Conversion in progress, watch the Jobs page for detail..."),
		)
	}

	if c.error != "" {
		return app.Div().Class("error").Body(
			app.Text("Error: " + c.error),
		)
	}

	if c.result != "" {
		return app.Div().Class("success").Body(
			app.Text(c.result),
		)
	}

	return app.Div()
}

// onStrategyChange records the selected quality strategy
func (c *ConvertPage) onStrategyChange(ctx app.Context, e app.Event) {
	c.strategy = ctx.JSSrc().Get("value").String()
}

// onConvertClick handles the convert button click
func (c *ConvertPage) onConvertClick(ctx app.Context, e app.Event) {
	fileInput := app.Window().GetElementByID("pdf-file")
	files := fileInput.Get("files")
	if !files.Truthy() || files.Get("length").Int() == 0 {
		c.error = "Select a PDF file first"
		return
	}

	c.running = true
	c.result = ""
	c.error = ""

	c.uploadFile(ctx, files.Index(0))
}

// uploadFile posts the chosen file to the conversion API
func (c *ConvertPage) uploadFile(ctx app.Context, file app.Value) {
	strategy := c.strategy
	if strategy == "" {
		strategy = "B"
	}

	ctx.Async(func() {
		formData := app.Window().Get("FormData").New()
		formData.Call("append", "file", file)
		formData.Call("append", "strategy", strategy)

		res := app.Window().Call("fetch", BuildAPIURL("/api/convert"), map[string]interface{}{
			"method": "POST",
			"body":   formData,
		})

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			if len(args) == 0 {
				return nil
			}
			response := args[0]

			status := response.Get("status").Int()

			response.Call("text").Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
				if len(args) == 0 {
					return nil
				}

				text := args[0].String()

				ctx.Dispatch(func(ctx app.Context) {
					c.running = false
					if status >= 200 && status < 300 {
						var resp convertResponse
						if err := json.Unmarshal([]byte(text), &resp); err == nil {
							if resp.Duplicate {
								c.result = "This file was already converted (" + resp.ULID + ")"
							} else {
								c.result = "Conversion started, job " + resp.JobID
							}
						} else {
							c.result = "Conversion started: " + text
						}
					} else {
						c.error = "Conversion failed: " + text
					}
				})

				return nil
			}))

			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			ctx.Dispatch(func(ctx app.Context) {
				c.running = false
				c.error = "Network error: Could not connect to server"
			})
			return nil
		}))
	})
}
