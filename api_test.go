package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	config "github.com/drummonds/godocx/config"
	database "github.com/drummonds/godocx/database"
	engine "github.com/drummonds/godocx/engine"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// setupTestServer creates a test server with all routes configured
func setupTestServer(t *testing.T) (*echo.Echo, *engine.ServerHandler, func()) {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger)

	// Keep uploads, outputs and artifacts inside the test sandbox
	testDir := t.TempDir()
	serverConfig.UploadPath = filepath.Join(testDir, "uploads")
	serverConfig.OutputPath = filepath.Join(testDir, "output")
	serverConfig.ArtifactPath = filepath.Join(testDir, "artifacts")
	serverConfig.Strategy = "B"

	// Use ephemeral PostgreSQL for tests
	ephemeralDB, err := database.SetupEphemeralPostgresDatabase()
	if err != nil {
		t.Fatalf("Failed to setup ephemeral database: %v", err)
	}
	testDB := database.Repository(ephemeralDB)
	t.Cleanup(func() {
		ephemeralDB.Close()
	})

	e := echo.New()
	e.HideBanner = true
	serverHandler := &engine.ServerHandler{
		DB:           testDB,
		Echo:         e,
		ServerConfig: serverConfig,
	}
	if err := serverHandler.StartupChecks(); err != nil {
		t.Fatalf("Startup checks failed: %v", err)
	}

	// Setup routes
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	e.POST("/api/convert", serverHandler.UploadDocument)
	e.GET("/api/conversions/latest", serverHandler.GetLatestConversions)
	e.GET("/api/conversion/:id", serverHandler.GetConversion)
	e.GET("/api/conversion/:id/download", serverHandler.DownloadDocument)
	e.GET("/api/conversion/:id/artifacts", serverHandler.GetArtifacts)
	e.DELETE("/api/conversion/:id", serverHandler.DeleteConversion)
	e.GET("/api/about", serverHandler.GetAboutInfo)
	e.POST("/api/clean", serverHandler.RunCleanupNow)

	// Job tracking routes
	e.GET("/api/jobs", serverHandler.GetRecentJobs)
	e.GET("/api/jobs/active", serverHandler.GetActiveJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)

	cleanup := func() {
		testDB.Close()
	}

	return e, serverHandler, cleanup
}

// makePDFUploadRequest builds a multipart upload request with the given file name and content
func makePDFUploadRequest(t *testing.T, fileName string, content []byte, strategy string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Failed to write file content: %v", err)
	}

	if strategy != "" {
		if err := writer.WriteField("strategy", strategy); err != nil {
			t.Fatalf("Failed to write strategy field: %v", err)
		}
	}

	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// TestGetLatestConversions tests the /api/conversions/latest endpoint
func TestGetLatestConversions(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Get latest conversions - empty database", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conversions/latest", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}

		var response map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to parse response: %v\nBody: %s", err, rec.Body.String())
		}

		// Response should have pagination metadata
		if _, ok := response["conversions"]; !ok {
			t.Logf("Response structure: %+v", response)
			t.Fatal("Response missing 'conversions' field")
		}

		// Handle nil conversions (empty database)
		if response["conversions"] == nil {
			t.Log("Got nil conversions (empty database)")
		} else {
			conversions, ok := response["conversions"].([]interface{})
			if !ok {
				t.Fatalf("Conversions field is not an array: %T", response["conversions"])
			}
			t.Logf("Got %d conversions", len(conversions))
		}
	})

	t.Run("Get latest conversions - with pagination", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conversions/latest?page=1", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}

		var response map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}

		// Check pagination metadata
		for _, field := range []string{"page", "pageSize", "totalCount", "totalPages", "hasNext", "hasPrevious"} {
			if _, ok := response[field]; !ok {
				t.Errorf("Response missing '%s' field", field)
			}
		}
	})

	t.Run("Get latest conversions - invalid page number", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conversions/latest?page=invalid", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		// Should still return 200 with default page 1
		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}
	})
}

// TestUploadConversion tests the POST /api/convert endpoint
func TestUploadConversion(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Upload - valid PDF", func(t *testing.T) {
		req := makePDFUploadRequest(t, "test_upload.pdf", minimalPDF(), "B")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK && rec.Code != http.StatusAccepted {
			t.Fatalf("Expected status 200 or 202, got %d: %s", rec.Code, rec.Body.String())
		}

		var response map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to parse upload response: %v", err)
		}

		if _, ok := response["ulid"]; !ok {
			t.Error("Response missing 'ulid' field")
		}
		if dup, ok := response["duplicate"].(bool); !ok || dup {
			t.Errorf("Expected duplicate=false for first upload, got %v", response["duplicate"])
		}
		if _, ok := response["jobId"]; !ok {
			t.Error("Response missing 'jobId' field")
		}
	})

	t.Run("Upload - duplicate PDF is detected", func(t *testing.T) {
		content := minimalPDF()

		req := makePDFUploadRequest(t, "dup_a.pdf", content, "B")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("First upload failed with status %d: %s", rec.Code, rec.Body.String())
		}

		// Same bytes under a different name should hit the hash dedup
		req = makePDFUploadRequest(t, "dup_b.pdf", content, "B")
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Second upload failed with status %d: %s", rec.Code, rec.Body.String())
		}

		var response map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if dup, ok := response["duplicate"].(bool); !ok || !dup {
			t.Errorf("Expected duplicate=true for identical content, got %v", response["duplicate"])
		}
	})

	t.Run("Upload - rejects non-PDF file", func(t *testing.T) {
		req := makePDFUploadRequest(t, "notes.txt", []byte("plain text"), "")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for non-PDF upload, got %d", rec.Code)
		}
	})

	t.Run("Upload - missing file", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		writer.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code == http.StatusOK {
			t.Error("Expected error status, got 200")
		}
	})
}

// TestGetConversion tests the /api/conversion/:id endpoint
func TestGetConversion(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Get conversion - non-existent ULID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conversion/01HQZX5J8N0000000000000000", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound && rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 404 or 500, got %d", rec.Code)
		}
	})

	t.Run("Get conversion - malformed ULID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conversion/not-a-ulid", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code == http.StatusOK {
			t.Error("Expected error for malformed conversion ID")
		}
	})
}

// TestDownloadNotReady tests that downloads are refused before the conversion completes
func TestDownloadNotReady(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := makePDFUploadRequest(t, "pending_download.pdf", minimalPDF(), "B")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Upload failed with status %d: %s", rec.Code, rec.Body.String())
	}

	var response map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse upload response: %v", err)
	}
	ulidStr, _ := response["ulid"].(string)
	if ulidStr == "" {
		t.Fatal("Upload response missing ulid")
	}

	// The background conversion has no renderer in the test environment,
	// so the record will not reach completed with an output file instantly
	req = httptest.NewRequest(http.MethodGet, "/api/conversion/"+ulidStr+"/download", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		ct := rec.Header().Get("Content-Type")
		t.Logf("Download succeeded immediately (content type %s)", ct)
	} else if rec.Code != http.StatusConflict && rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 409 or 404 for unfinished conversion, got %d", rec.Code)
	}
}

// TestDeleteConversion tests the DELETE /api/conversion/:id endpoint
func TestDeleteConversion(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Delete conversion - non-existent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/conversion/01HQZX5J8N0000000000000000", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		// Should handle gracefully
		if rec.Code != http.StatusOK && rec.Code != http.StatusNotFound && rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 200, 404, or 500, got %d", rec.Code)
		}
	})
}

// TestAdminEndpoints tests the admin API endpoints
func TestAdminEndpoints(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Trigger manual cleanup", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/clean", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		// Parse response
		var response map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to parse clean response: %v", err)
		}

		// Should have jobId and message (job-based response)
		if _, ok := response["jobId"]; !ok {
			t.Error("Response missing 'jobId' field")
		}
		if _, ok := response["message"]; !ok {
			t.Error("Response missing 'message' field")
		}
	})

	t.Run("Invalid method for admin endpoints", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/clean", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Logf("GET on POST-only endpoint returned %d (may be handled by catch-all)", rec.Code)
		}
	})
}

// TestJobEndpoints tests the job tracking API
func TestJobEndpoints(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Recent jobs after cleanup trigger", func(t *testing.T) {
		// Trigger a cleanup so at least one job exists
		req := httptest.NewRequest(http.MethodPost, "/api/clean", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Cleanup trigger failed with status %d", rec.Code)
		}

		// Give the job goroutine a moment to register
		time.Sleep(200 * time.Millisecond)

		req = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var jobs []map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
			t.Fatalf("Failed to parse jobs response: %v\nBody: %s", err, rec.Body.String())
		}
		if len(jobs) == 0 {
			t.Error("Expected at least one job after cleanup trigger")
		}
	})

	t.Run("Active jobs endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/active", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}
	})

	t.Run("Get job - non-existent ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/01HQZX5J8N0000000000000000", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound && rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 404 or 500, got %d", rec.Code)
		}
	})
}

// TestConcurrentRequests tests API behavior under concurrent load
func TestConcurrentRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrent test in short mode")
	}

	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Concurrent home requests", func(t *testing.T) {
		concurrency := 10
		done := make(chan bool, concurrency)
		errors := make(chan error, concurrency)

		for i := 0; i < concurrency; i++ {
			go func(id int) {
				req := httptest.NewRequest(http.MethodGet, "/api/conversions/latest", nil)
				rec := httptest.NewRecorder()
				e.ServeHTTP(rec, req)

				if rec.Code != http.StatusOK {
					errors <- fmt.Errorf("concurrent request %d failed with status %d", id, rec.Code)
				}
				done <- true
			}(i)
		}

		// Wait for all requests
		for i := 0; i < concurrency; i++ {
			<-done
		}

		close(errors)
		for err := range errors {
			t.Error(err)
		}
	})
}

// TestContentTypes tests that endpoints return correct content types
func TestContentTypes(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		name         string
		endpoint     string
		method       string
		expectedType string
	}{
		{"Latest conversions endpoint", "/api/conversions/latest", "GET", "application/json"},
		{"About endpoint", "/api/about", "GET", "application/json"},
		{"Jobs endpoint", "/api/jobs", "GET", "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.endpoint, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			contentType := rec.Header().Get("Content-Type")
			if contentType != tt.expectedType && !contains(contentType, tt.expectedType) {
				t.Errorf("Expected Content-Type %s, got %s", tt.expectedType, contentType)
			}
		})
	}
}

// Helper function to check if string contains substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s[:len(substr)] == substr || s[len(s)-len(substr):] == substr ||
		(len(s) > len(substr) && (s[:len(substr)] == substr || s[len(s)-len(substr):] == substr)))
}

// TestErrorHandling tests API error handling
func TestErrorHandling(t *testing.T) {
	e, _, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Very long conversion ID", func(t *testing.T) {
		longID := string(make([]byte, 1000))
		for i := range longID {
			longID = longID[:i] + "a" + longID[i+1:]
		}
		req := httptest.NewRequest(http.MethodGet, "/api/conversion/"+longID, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		// Should handle gracefully - not return OK
		if rec.Code == http.StatusOK {
			t.Error("Should not return OK for invalid long ID")
		}
		t.Logf("Long ID returned status %d", rec.Code)
	})
}

// TestGetAboutInfo tests the /api/about endpoint
func TestGetAboutInfo(t *testing.T) {
	e, serverHandler, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("Get about information", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/about", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var aboutInfo map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &aboutInfo); err != nil {
			t.Fatalf("Failed to parse response: %v\nBody: %s", err, rec.Body.String())
		}

		// Verify required fields are present
		requiredFields := []string{"version", "visionConfigured", "sofficePath", "databaseType", "uploadPath", "outputPath", "artifactPath", "strategy", "ssimThreshold", "maxRounds"}
		for _, field := range requiredFields {
			if _, ok := aboutInfo[field]; !ok {
				t.Errorf("Response missing required field: %s", field)
			}
		}

		// Verify field types
		if _, ok := aboutInfo["version"].(string); !ok {
			t.Errorf("version should be a string, got %T", aboutInfo["version"])
		}

		if _, ok := aboutInfo["visionConfigured"].(bool); !ok {
			t.Errorf("visionConfigured should be a boolean, got %T", aboutInfo["visionConfigured"])
		}

		if _, ok := aboutInfo["strategy"].(string); !ok {
			t.Errorf("strategy should be a string, got %T", aboutInfo["strategy"])
		}

		// Log the actual values
		t.Logf("Version: %v", aboutInfo["version"])
		t.Logf("Vision Configured: %v", aboutInfo["visionConfigured"])
		t.Logf("Soffice Path: %v", aboutInfo["sofficePath"])
		t.Logf("Database Type: %v", aboutInfo["databaseType"])
		t.Logf("Strategy: %v", aboutInfo["strategy"])

		// Verify vision configuration matches server config
		visionConfigured := aboutInfo["visionConfigured"].(bool)
		expectedVisionConfigured := serverHandler.ServerConfig.GeminiAPIKey != ""
		if visionConfigured != expectedVisionConfigured {
			t.Errorf("Vision configured mismatch: got %v, expected %v", visionConfigured, expectedVisionConfigured)
		}

		// Verify database type
		dbType := aboutInfo["databaseType"].(string)
		if dbType == "" {
			t.Error("Database type should not be empty")
		}
	})

	t.Run("About endpoint returns consistent data", func(t *testing.T) {
		// Make multiple requests to ensure consistency
		var responses []map[string]interface{}

		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/api/about", nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("Request %d failed with status %d", i+1, rec.Code)
				continue
			}

			var aboutInfo map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &aboutInfo); err != nil {
				t.Errorf("Request %d failed to parse: %v", i+1, err)
				continue
			}

			responses = append(responses, aboutInfo)
		}

		// Verify all responses are identical
		if len(responses) < 2 {
			t.Fatal("Not enough successful responses to compare")
		}

		firstResponse, _ := json.Marshal(responses[0])
		for i := 1; i < len(responses); i++ {
			currentResponse, _ := json.Marshal(responses[i])
			if string(firstResponse) != string(currentResponse) {
				t.Errorf("Response %d differs from first response", i+1)
				t.Logf("First: %s", firstResponse)
				t.Logf("Current: %s", currentResponse)
			}
		}

		t.Log("✓ About endpoint returns consistent data across multiple requests")
	})

	t.Run("About endpoint handles OPTIONS request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/about", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		// Should handle CORS preflight (or return method not allowed)
		if rec.Code != http.StatusNoContent && rec.Code != http.StatusOK && rec.Code != http.StatusMethodNotAllowed {
			t.Logf("OPTIONS request returned status %d", rec.Code)
		}
	})
}
