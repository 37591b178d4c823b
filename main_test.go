package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	config "github.com/drummonds/godocx/config"
	database "github.com/drummonds/godocx/database"
	engine "github.com/drummonds/godocx/engine"
	"github.com/drummonds/godocx/webapp"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// getBrowser finds an available browser for testing
func getBrowser() (string, error) {
	browsers := []string{"firefox", "firefox-esr", "chromium", "chromium-browser", "google-chrome", "chrome"}
	for _, browser := range browsers {
		if path, err := exec.LookPath(browser); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no suitable browser found")
}

// setupIntegrationServer builds a fully routed server backed by an ephemeral database
func setupIntegrationServer(t *testing.T) (*echo.Echo, config.ServerConfig) {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger)

	// Keep uploads, outputs and artifacts inside the test sandbox
	testDir := t.TempDir()
	serverConfig.UploadPath = filepath.Join(testDir, "uploads")
	serverConfig.OutputPath = filepath.Join(testDir, "output")
	serverConfig.ArtifactPath = filepath.Join(testDir, "artifacts")

	ephemeralDB, err := database.SetupEphemeralPostgresDatabase()
	if err != nil {
		t.Fatalf("Failed to setup ephemeral database: %v", err)
	}
	db := database.Repository(ephemeralDB)
	t.Cleanup(func() {
		ephemeralDB.Close()
	})

	e := echo.New()
	e.HideBanner = true
	serverHandler := engine.ServerHandler{DB: db, Echo: e, ServerConfig: serverConfig}
	serverHandler.StartupChecks()
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	// Set up WASM app routes exactly as in main.go
	appHandler := webapp.Handler()

	e.GET("/wasm_exec.js", func(c echo.Context) error {
		return c.File("web/wasm_exec.js")
	})

	e.GET("/app.js", echo.WrapHandler(appHandler))
	e.GET("/app.css", echo.WrapHandler(appHandler))
	e.GET("/manifest.webmanifest", echo.WrapHandler(appHandler))

	e.Static("/web", "web")
	e.File("/webapp/webapp.css", "webapp/webapp.css")
	e.File("/favicon.ico", "public/favicon.ico")
	e.Static("/artifacts", serverConfig.ArtifactPath)

	// API routes
	e.POST("/api/convert", serverHandler.UploadDocument)
	e.GET("/api/conversions/latest", serverHandler.GetLatestConversions)
	e.GET("/api/conversion/:id", serverHandler.GetConversion)
	e.GET("/api/conversion/:id/download", serverHandler.DownloadDocument)
	e.GET("/api/conversion/:id/artifacts", serverHandler.GetArtifacts)
	e.DELETE("/api/conversion/:id", serverHandler.DeleteConversion)
	e.GET("/api/about", serverHandler.GetAboutInfo)
	e.POST("/api/clean", serverHandler.RunCleanupNow)
	e.GET("/api/jobs", serverHandler.GetRecentJobs)
	e.GET("/api/jobs/active", serverHandler.GetActiveJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)

	// Serve go-app handler for all other routes (must be last)
	e.Any("/*", echo.WrapHandler(appHandler))

	return e, serverConfig
}

// TestFrontendRendering tests that the frontend loads correctly using a headless browser
func TestFrontendRendering(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Set a timeout for the entire test
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Use channel to detect if test completes or times out
	done := make(chan bool)
	go func() {
		runFrontendRenderingTest(t)
		done <- true
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
		t.Fatal("Test timed out after 60 seconds")
	}
}

// runFrontendRenderingTest contains the actual test logic
func runFrontendRenderingTest(t *testing.T) {
	// Check if any browser is available (Chrome, Chromium, or Firefox)
	browserPath, err := getBrowser()

	// Check for Firefox and use fallback immediately (before setting up server)
	if err == nil && (filepath.Base(browserPath) == "firefox" || filepath.Base(browserPath) == "firefox-esr") {
		// Firefox headless with chromedp is unreliable, use curl instead
		if _, curlErr := exec.LookPath("curl"); curlErr == nil {
			t.Log("Firefox detected, using curl instead for reliability")
			testWithCurl(t)
			return
		}
		t.Skip("Firefox found but curl not available, and Firefox headless is unreliable with chromedp")
	}

	if err != nil {
		// Try curl as a fallback
		if _, err := exec.LookPath("curl"); err == nil {
			t.Log("No browser found, will use curl for basic connectivity test")
			testWithCurl(t)
			return
		}
		t.Skip("No browser (Chrome, Firefox, or curl) found, skipping browser test")
	}
	t.Logf("Using browser: %s", browserPath)

	e, _ := setupIntegrationServer(t)

	// Start server in background
	testPort := "8999"
	go func() {
		if err := e.Start(fmt.Sprintf("127.0.0.1:%s", testPort)); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(2 * time.Second)
	defer e.Shutdown(context.Background())

	// Create headless browser context
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browserPath),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)
	t.Log("Running test with Chrome/Chromium in headless mode")

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// Set a timeout for the browser operations
	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Navigate to the home page and check if it renders
	var pageTitle string
	var bodyHTML string

	testURL := fmt.Sprintf("http://127.0.0.1:%s", testPort)

	err = chromedp.Run(ctx,
		chromedp.Navigate(testURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.Title(&pageTitle),
		chromedp.InnerHTML("body", &bodyHTML),
	)

	if err != nil {
		t.Fatalf("Failed to load page: %v", err)
	}

	// Verify the page loaded
	if pageTitle == "" {
		t.Error("Page title is empty")
	}

	if bodyHTML == "" {
		t.Error("Body HTML is empty")
	}

	// Check that the page contains expected content
	if len(bodyHTML) < 100 {
		t.Errorf("Body HTML seems too short (%d chars), page may not have rendered properly", len(bodyHTML))
	}

	t.Logf("Frontend test passed! Page title: %s, Body length: %d chars", pageTitle, len(bodyHTML))
}

// TestSofficeOptional tests that the application runs without LibreOffice configured
func TestSofficeOptional(t *testing.T) {
	serverConfig, logger := config.SetupServer()

	// Verify that even without a rendering tool, we still get a config
	if serverConfig.ListenAddrPort == "" {
		t.Error("Server config was not loaded properly")
	}

	if serverConfig.SofficePath != "" {
		t.Logf("Rendering tool path configured: %s", serverConfig.SofficePath)
	} else {
		t.Log("LibreOffice not configured (visual validation will be skipped)")
	}

	if logger == nil {
		t.Error("Logger should not be nil")
	}

	t.Log("Soffice optional test passed - application can run without visual validation")
}

// testWithCurl performs a basic connectivity test using curl
func testWithCurl(t *testing.T) {
	// Set a timeout for the test
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan bool)
	testErr := make(chan error, 1)

	go func() {
		err := runTestWithCurl(t)
		if err != nil {
			testErr <- err
		}
		done <- true
	}()

	select {
	case <-done:
		select {
		case err := <-testErr:
			t.Fatal(err)
		default:
			return
		}
	case <-ctx.Done():
		t.Fatal("Test timed out after 30 seconds")
	}
}

// runTestWithCurl contains the actual test logic
func runTestWithCurl(t *testing.T) error {
	e, _ := setupIntegrationServer(t)

	// Start server in background
	testPort := "8997"
	go func() {
		if err := e.Start(fmt.Sprintf("127.0.0.1:%s", testPort)); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(2 * time.Second)
	defer e.Shutdown(context.Background())

	testURL := fmt.Sprintf("http://127.0.0.1:%s", testPort)

	// Use curl to fetch the page
	cmd := exec.Command("curl", "-s", "-L", testURL)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("Curl failed to fetch page: %v, output: %s", err, string(output))
	}

	outputStr := string(output)

	// Basic checks that the page loaded
	if len(outputStr) < 10 {
		return fmt.Errorf("Curl output too short (%d chars), page may not have loaded", len(outputStr))
	}

	// Check for HTML indicators
	if !strings.Contains(outputStr, "html") && !strings.Contains(outputStr, "HTML") {
		t.Logf("Warning: response may not be HTML")
	}

	// Check for any error indicators
	if strings.Contains(strings.ToLower(outputStr), "404") ||
		strings.Contains(strings.ToLower(outputStr), "500") ||
		strings.Contains(strings.ToLower(outputStr), "connection refused") {
		return fmt.Errorf("Curl output contains error indicators: %s", outputStr[:min(500, len(outputStr))])
	}

	t.Logf("Curl test passed! Successfully fetched page (%d chars)", len(outputStr))
	t.Logf("First 200 chars of output: %s", outputStr[:min(200, len(outputStr))])
	return nil
}

// TestConversionRunsFromUpload tests that an upload kicks off a background conversion job
func TestConversionRunsFromUpload(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	e, serverConfig := setupIntegrationServer(t)

	// Start server in background
	testPort := "8995"
	go func() {
		if err := e.Start(fmt.Sprintf("127.0.0.1:%s", testPort)); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()
	time.Sleep(2 * time.Second)
	defer e.Shutdown(context.Background())

	if _, err := exec.LookPath("curl"); err != nil {
		t.Skip("curl not available for upload test")
	}

	// Write a small PDF and upload it through the API
	pdfPath := filepath.Join(t.TempDir(), "smoke.pdf")
	if err := os.WriteFile(pdfPath, minimalPDF(), 0644); err != nil {
		t.Fatalf("Failed to write test PDF: %v", err)
	}

	uploadURL := fmt.Sprintf("http://127.0.0.1:%s/api/convert", testPort)
	cmd := exec.Command("curl", "-s", "-F", "file=@"+pdfPath, "-F", "strategy=B", uploadURL)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Curl upload failed: %v, output: %s", err, string(output))
	}

	outputStr := string(output)
	t.Logf("Upload response: %s", outputStr)

	if !strings.Contains(outputStr, "ulid") {
		t.Errorf("Upload response missing ulid: %s", outputStr)
	}
	if !strings.Contains(outputStr, "jobId") {
		t.Errorf("Upload response missing jobId: %s", outputStr)
	}

	// Give the background job a moment, then check the uploaded file landed
	time.Sleep(2 * time.Second)
	uploaded := filepath.Join(serverConfig.UploadPath, "smoke.pdf")
	if _, err := os.Stat(uploaded); err != nil {
		t.Errorf("Uploaded PDF not found in upload folder: %v", err)
	}
}

// minimalPDF returns a minimal valid single page PDF for testing
func minimalPDF() []byte {
	pdfContent := `%PDF-1.4
1 0 obj
<<
/Type /Catalog
/Pages 2 0 R
>>
endobj
2 0 obj
<<
/Type /Pages
/Kids [3 0 R]
/Count 1
>>
endobj
3 0 obj
<<
/Type /Page
/Parent 2 0 R
/MediaBox [0 0 612 792]
/Contents 4 0 R
/Resources <<
/Font <<
/F1 5 0 R
>>
>>
>>
endobj
4 0 obj
<<
/Length 44
>>
stream
BT
/F1 12 Tf
100 700 Td
(Test Document) Tj
ET
endstream
endobj
5 0 obj
<<
/Type /Font
/Subtype /Type1
/BaseFont /Helvetica
>>
endobj
xref
0 6
0000000000 65535 f
0000000009 00000 n
0000000058 00000 n
0000000115 00000 n
0000000262 00000 n
0000000356 00000 n
trailer
<<
/Size 6
/Root 1 0 R
>>
startxref
444
%%EOF`

	return []byte(pdfContent)
}

// min returns the minimum of two integers
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// TestWasmFileValid tests that the WASM file is valid
func TestWasmFileValid(t *testing.T) {
	wasmPath := "web/app.wasm"

	// Check if file exists
	info, err := os.Stat(wasmPath)
	if err != nil {
		t.Skipf("WASM file not found at %s: %v. Run 'task build:wasm' first.", wasmPath, err)
	}

	// Check file is not empty
	if info.Size() == 0 {
		t.Fatal("WASM file is empty")
	}

	// Check magic number
	file, err := os.Open(wasmPath)
	if err != nil {
		t.Fatalf("Failed to open WASM file: %v", err)
	}
	defer file.Close()

	magicNumber := make([]byte, 4)
	_, err = file.Read(magicNumber)
	if err != nil {
		t.Fatalf("Failed to read WASM magic number: %v", err)
	}

	// WASM magic number should be: 0x00 0x61 0x73 0x6d ("\0asm")
	expectedMagic := []byte{0x00, 0x61, 0x73, 0x6d}
	if !bytes.Equal(magicNumber, expectedMagic) {
		t.Errorf("Invalid WASM magic number. Got %v, expected %v", magicNumber, expectedMagic)
		t.Errorf("This usually means the WASM file was not built correctly.")
		t.Errorf("The file appears to be: %v", string(magicNumber))
	}

	t.Logf("WASM file is valid: %s (%d bytes)", wasmPath, info.Size())
}

// TestRootEndpoint tests that the root endpoint returns a 200 OK response with WASM app
func TestRootEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	if _, err := exec.LookPath("curl"); err != nil {
		t.Skip("curl not available for root endpoint test")
	}

	e, _ := setupIntegrationServer(t)

	// Start server in background
	testPort := "8996"
	go func() {
		if err := e.Start(fmt.Sprintf("127.0.0.1:%s", testPort)); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(2 * time.Second)
	defer e.Shutdown(context.Background())

	testURL := fmt.Sprintf("http://127.0.0.1:%s/", testPort)
	t.Logf("Testing URL: %s", testURL)

	// Use curl to test the endpoint with a timeout
	cmd := exec.Command("curl", "-s", "-L", "-w", "\n%{http_code}", "--max-time", "5", testURL)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Logf("Curl error: %v, output: %s", err, string(output))
		// Don't fatal here, continue to analyze the output
	}

	outputStr := string(output)
	lines := strings.Split(strings.TrimSpace(outputStr), "\n")

	// The last line should be the HTTP status code
	if len(lines) < 1 {
		t.Fatalf("No output from curl")
	}

	statusCode := lines[len(lines)-1]
	responseBody := strings.Join(lines[:len(lines)-1], "\n")

	t.Logf("HTTP Status Code: %s", statusCode)
	t.Logf("Response length: %d chars", len(responseBody))
	t.Logf("First 200 chars: %s", responseBody[:min(200, len(responseBody))])

	// Check if we got a 200 OK
	if statusCode != "200" {
		t.Errorf("Expected status code 200, got %s", statusCode)
	}

	// Check that we got some content back
	if len(responseBody) < 10 {
		t.Errorf("Response body too short (%d chars), expected HTML content", len(responseBody))
	}

	// Check for HTML indicators
	if !strings.Contains(responseBody, "html") && !strings.Contains(responseBody, "HTML") {
		t.Logf("Warning: response may not be HTML")
	}

	// Check that the page doesn't contain the "Go is not defined" error
	if strings.Contains(responseBody, "Go is not defined") {
		t.Error("Page contains 'Go is not defined' error - WebAssembly not loading correctly")
	}

	// Test that wasm_exec.js is accessible at root
	wasmURL := fmt.Sprintf("http://127.0.0.1:%s/wasm_exec.js", testPort)
	wasmCmd := exec.Command("curl", "-s", "-L", "-w", "\n%{http_code}", "--max-time", "5", wasmURL)
	wasmOutput, err := wasmCmd.CombinedOutput()
	if err != nil {
		t.Logf("Warning: Could not fetch /wasm_exec.js: %v", err)
	} else {
		wasmOutputStr := string(wasmOutput)
		wasmLines := strings.Split(strings.TrimSpace(wasmOutputStr), "\n")
		if len(wasmLines) > 0 {
			wasmStatusCode := wasmLines[len(wasmLines)-1]
			t.Logf("/wasm_exec.js status code: %s", wasmStatusCode)
		}
	}

	if statusCode == "200" && len(responseBody) > 10 {
		t.Log("Root endpoint test passed!")
	}
}

// TestAboutPageWithChromedp tests the About page using a headless browser that can execute WASM
func TestAboutPageWithChromedp(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Check if a browser is available
	browsers := []string{"chromium", "chromium-browser", "google-chrome", "chrome"}
	browserFound := false
	for _, browser := range browsers {
		if _, err := exec.LookPath(browser); err == nil {
			browserFound = true
			break
		}
	}
	if !browserFound {
		t.Skip("No Chrome/Chromium browser found, skipping chromedp test")
	}

	if _, err := os.Stat("web/app.wasm"); err != nil {
		t.Skip("WASM bundle not built, skipping chromedp test")
	}

	e, _ := setupIntegrationServer(t)

	// Start server in background
	testPort := "8994"
	go func() {
		if err := e.Start(fmt.Sprintf("127.0.0.1:%s", testPort)); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(2 * time.Second)
	defer e.Shutdown(context.Background())

	// Create chromedp context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Set up headless browser options
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// Create a new browser context with custom options
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	// Create a chromedp context
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	testURL := fmt.Sprintf("http://127.0.0.1:%s/about", testPort)
	t.Logf("Navigating to %s with chromedp", testURL)

	var pageHTML string
	var pageTitle string

	// Try to navigate and get content, with better error handling
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(testURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)

	if err != nil {
		t.Skipf("Chromedp failed to navigate (browser may not be compatible): %v", err)
	}

	// Give WASM time to load and execute
	t.Log("Waiting for WASM to load and render...")
	time.Sleep(8 * time.Second)

	// Get the page content
	var bodyHTML string
	err = chromedp.Run(taskCtx,
		chromedp.Title(&pageTitle),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
		chromedp.InnerHTML("body", &bodyHTML, chromedp.ByQuery),
	)

	if err != nil {
		t.Fatalf("Failed to get page content: %v", err)
	}

	t.Logf("Page title: %s", pageTitle)
	t.Logf("Body HTML length: %d chars", len(bodyHTML))

	// Verify the page contains expected About page content
	pageLower := strings.ToLower(pageHTML)

	expectedContent := []string{
		"about godocx",             // Page title
		"application information",  // Section heading
		"quality loop",             // Section heading
		"database configuration",   // Section heading
		"storage",                  // Section heading
		"version",                  // Info field
		"database",                 // Info field
		"vision api",               // Info field
		"rendering",                // Info field
		"similarity threshold",     // Quality loop field
	}

	foundContent := 0
	for _, content := range expectedContent {
		if strings.Contains(pageLower, content) {
			t.Logf("✓ Found expected content: '%s'", content)
			foundContent++
		} else {
			t.Logf("⚠ Missing expected content: '%s'", content)
		}
	}

	if foundContent < 8 {
		t.Fatalf("Only found %d/%d expected content items. Page may not have rendered correctly.", foundContent, len(expectedContent))
	}

	// Verify it's NOT showing error states
	if strings.Contains(pageHTML, "Loading...") {
		t.Error("Page still showing 'Loading...' - WASM may not have fully loaded")
	}
	if strings.Contains(pageHTML, "Network error") {
		t.Error("Page showing network error")
	}

	t.Logf("About page chromedp test completed successfully (found %d/%d content items)", foundContent, len(expectedContent))
}
