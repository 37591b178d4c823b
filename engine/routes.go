package engine

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/drummonds/godocx/config"
	"github.com/drummonds/godocx/database"
	"github.com/drummonds/godocx/internal/build"
	"github.com/drummonds/godocx/render"
	"github.com/labstack/echo/v4"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
}

type artifactEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// UploadDocument accepts a PDF upload and starts a conversion job
// @Summary Upload a PDF for conversion
// @Description Upload a PDF file and start an asynchronous PDF to DOCX conversion
// @Tags Conversions
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF file to convert"
// @Param strategy formData string false "Quality strategy, A (iterative) or B (advisory)"
// @Success 200 {object} map[string]interface{} "Conversion ULID and job ID"
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /convert [post]
func (serverHandler *ServerHandler) UploadDocument(context echo.Context) error {
	request := context.Request()
	strategy := request.FormValue("strategy")
	if strategy == "" {
		strategy = serverHandler.ServerConfig.Strategy
	}
	file, fileHeader, err := request.FormFile("file")
	if err != nil {
		Logger.Error("Problem finding file in upload", "error", err)
		return context.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "No file in upload",
		})
	}
	defer file.Close()

	if strings.ToLower(filepath.Ext(fileHeader.Filename)) != ".pdf" {
		return context.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Only PDF files can be converted",
		})
	}

	//Store it in the upload folder so a bad file sticks there and not in the output folder
	path := filepath.Join(serverHandler.ServerConfig.UploadPath, fileHeader.Filename)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		Logger.Error("Unable to create filepath for upload", "path", path, "error", err)
		return err
	}
	body, err := io.ReadAll(file)
	if err != nil {
		Logger.Error("Unable to read uploaded file", "error", err)
		return err
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		Logger.Error("Unable to write uploaded file", "path", path, "error", err)
		return err
	}

	conv, duplicate, err := database.NewConversion(fileHeader.Filename, path, strategy, serverHandler.DB)
	if err != nil {
		Logger.Error("Unable to record conversion", "error", err)
		return context.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to record conversion",
		})
	}
	if duplicate {
		Logger.Info("Upload matched an existing conversion", "ulid", conv.ULID.String(), "status", conv.Status)
		return context.JSON(http.StatusOK, map[string]interface{}{
			"ulid":      conv.ULID.String(),
			"duplicate": true,
			"status":    conv.Status,
		})
	}

	job, err := serverHandler.DB.CreateJob(database.JobTypeConversion, fmt.Sprintf("Converting %s", fileHeader.Filename))
	if err != nil {
		Logger.Error("Failed to create conversion job", "error", err)
		return context.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create job",
		})
	}

	// Run the conversion in a goroutine so we can return immediately
	go func() {
		serverHandler.convertJobFuncWithTracking(conv, serverHandler.DB, job.ID)
	}()

	return context.JSON(http.StatusOK, map[string]interface{}{
		"ulid":      conv.ULID.String(),
		"jobId":     job.ID.String(),
		"duplicate": false,
	})
}

// GetConversion will return a conversion by ULID
// @Summary Get a conversion by ID
// @Description Retrieve conversion details, including score and quality level, by ULID
// @Tags Conversions
// @Accept json
// @Produce json
// @Param id path string true "Conversion ULID"
// @Success 200 {object} database.Conversion "Conversion details"
// @Failure 404 {object} map[string]interface{} "Conversion not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /conversion/{id} [get]
func (serverHandler *ServerHandler) GetConversion(context echo.Context) error {
	ulidStr := context.Param("id")
	conversion, httpStatus, err := database.FetchConversion(ulidStr, serverHandler.DB)
	if err != nil {
		Logger.Error("GetConversion API call failed", "error", err)
		return context.JSON(httpStatus, err)
	}
	return context.JSON(httpStatus, conversion)
}

// GetLatestConversions gets the latest conversions that were requested
// @Summary Get latest conversions
// @Description Retrieve the most recent conversions with pagination
// @Tags Conversions
// @Accept json
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Success 200 {object} map[string]interface{} "Paginated conversions with metadata"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /conversions/latest [get]
func (serverHandler *ServerHandler) GetLatestConversions(context echo.Context) error {
	// Get page parameter (default to 1)
	page := 1
	if pageParam := context.QueryParam("page"); pageParam != "" {
		if p, err := strconv.Atoi(pageParam); err == nil && p > 0 {
			page = p
		}
	}

	// Fixed page size of 20
	pageSize := 20

	conversions, totalCount, err := serverHandler.DB.GetConversionsWithPagination(page, pageSize)
	if err != nil {
		Logger.Error("Can't find latest conversions", "error", err)
		return context.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to fetch conversions",
		})
	}

	// Calculate pagination metadata
	totalPages := (totalCount + pageSize - 1) / pageSize // Ceiling division

	return context.JSON(http.StatusOK, map[string]interface{}{
		"conversions": conversions,
		"page":        page,
		"pageSize":    pageSize,
		"totalCount":  totalCount,
		"totalPages":  totalPages,
		"hasNext":     page < totalPages,
		"hasPrevious": page > 1,
	})
}

// DownloadDocument streams the built DOCX file for a completed conversion
// @Summary Download the converted DOCX
// @Description Download the DOCX file produced by a completed conversion
// @Tags Conversions
// @Produce application/vnd.openxmlformats-officedocument.wordprocessingml.document
// @Param id path string true "Conversion ULID"
// @Success 200 {file} file "DOCX file"
// @Failure 404 {object} map[string]interface{} "Conversion or file not found"
// @Failure 409 {object} map[string]interface{} "Conversion not completed yet"
// @Router /conversion/{id}/download [get]
func (serverHandler *ServerHandler) DownloadDocument(context echo.Context) error {
	ulidStr := context.Param("id")
	conversion, httpStatus, err := database.FetchConversion(ulidStr, serverHandler.DB)
	if err != nil {
		Logger.Error("DownloadDocument API call failed", "error", err)
		return context.JSON(httpStatus, err)
	}
	if conversion.Status != database.ConversionCompleted {
		return context.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "Conversion has not completed",
			"status": conversion.Status,
		})
	}
	if _, err := os.Stat(conversion.OutputPath); err != nil {
		Logger.Error("Output file missing for completed conversion", "path", conversion.OutputPath, "error", err)
		return context.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Output file not found",
		})
	}
	downloadName := strings.TrimSuffix(conversion.SourceName, filepath.Ext(conversion.SourceName)) + ".docx"
	return context.Attachment(conversion.OutputPath, downloadName)
}

// GetArtifacts lists the rendered pages and diff overlays of a conversion
// @Summary List conversion artifacts
// @Description List the rendered page images and diff overlays kept for a conversion
// @Tags Conversions
// @Accept json
// @Produce json
// @Param id path string true "Conversion ULID"
// @Success 200 {array} artifactEntry "Artifact files"
// @Failure 404 {object} map[string]interface{} "Conversion not found"
// @Router /conversion/{id}/artifacts [get]
func (serverHandler *ServerHandler) GetArtifacts(context echo.Context) error {
	ulidStr := context.Param("id")
	conversion, httpStatus, err := database.FetchConversion(ulidStr, serverHandler.DB)
	if err != nil {
		Logger.Error("GetArtifacts API call failed", "error", err)
		return context.JSON(httpStatus, err)
	}

	entries := []artifactEntry{}
	if conversion.ArtifactDir != "" {
		err = filepath.Walk(conversion.ArtifactDir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			relPath, err := filepath.Rel(serverHandler.ServerConfig.ArtifactPath, path)
			if err != nil {
				return nil
			}
			entries = append(entries, artifactEntry{
				Name: filepath.ToSlash(relPath),
				Size: info.Size(),
				URL:  "/artifacts/" + filepath.ToSlash(relPath),
			})
			return nil
		})
		if err != nil {
			Logger.Warn("Error walking artifact directory", "dir", conversion.ArtifactDir, "error", err)
		}
	}
	return context.JSON(http.StatusOK, entries)
}

// DeleteConversion removes a conversion, its files and its artifacts
// @Summary Delete a conversion
// @Description Delete a conversion record along with its source, output and artifact files
// @Tags Conversions
// @Accept json
// @Produce json
// @Param id path string true "Conversion ULID"
// @Success 200 {string} string "Conversion Deleted"
// @Failure 404 {object} map[string]interface{} "Conversion not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /conversion/{id} [delete]
func (serverHandler *ServerHandler) DeleteConversion(context echo.Context) error {
	ulidStr := context.Param("id")
	conversion, httpStatus, err := database.FetchConversion(ulidStr, serverHandler.DB)
	if err != nil {
		Logger.Error("DeleteConversion lookup failed", "error", err)
		return context.JSON(httpStatus, err)
	}

	if err := serverHandler.DB.DeleteConversion(ulidStr); err != nil {
		Logger.Error("Unable to delete conversion from database", "ulid", ulidStr, "error", err)
		return context.JSON(http.StatusInternalServerError, err)
	}
	if conversion.OutputPath != "" {
		if err := os.Remove(conversion.OutputPath); err != nil && !os.IsNotExist(err) {
			Logger.Warn("Unable to delete output file", "path", conversion.OutputPath, "error", err)
		}
	}
	if conversion.SourcePath != "" {
		if err := os.Remove(conversion.SourcePath); err != nil && !os.IsNotExist(err) {
			Logger.Warn("Unable to delete source file", "path", conversion.SourcePath, "error", err)
		}
	}
	if conversion.ArtifactDir != "" {
		if err := os.RemoveAll(conversion.ArtifactDir); err != nil {
			Logger.Warn("Unable to delete artifact directory", "path", conversion.ArtifactDir, "error", err)
		}
	}
	return context.JSON(http.StatusOK, "Conversion Deleted")
}

// GetAboutInfo returns information about the application configuration
// @Summary Get application information
// @Description Retrieve information about the application configuration, version, and database
// @Tags Admin
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Application information"
// @Router /about [get]
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {

	sofficePath := serverHandler.ServerConfig.SofficePath
	if sofficePath == "" || sofficePath == "auto" {
		sofficePath = render.FindSoffice()
	}

	aboutInfo := map[string]interface{}{
		"version":          build.Version,
		"sofficePath":      sofficePath,
		"visionConfigured": serverHandler.ServerConfig.GeminiAPIKey != "",
		"databaseType":     serverHandler.ServerConfig.DatabaseType,
		"databaseHost":     serverHandler.ServerConfig.DatabaseHost,
		"databasePort":     serverHandler.ServerConfig.DatabasePort,
		"databaseName":     serverHandler.ServerConfig.DatabaseDbname,
		"uploadPath":       serverHandler.ServerConfig.UploadPath,
		"outputPath":       serverHandler.ServerConfig.OutputPath,
		"artifactPath":     serverHandler.ServerConfig.ArtifactPath,
		"strategy":         serverHandler.ServerConfig.Strategy,
		"ssimThreshold":    serverHandler.ServerConfig.SSIMThreshold,
		"maxRounds":        serverHandler.ServerConfig.MaxRounds,
	}

	return c.JSON(http.StatusOK, aboutInfo)
}

// RunCleanupNow triggers the retention cleanup manually
// @Summary Trigger retention cleanup
// @Description Manually trigger removal of expired conversions and their files
// @Tags Admin
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Job created with jobId"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /clean [post]
func (serverHandler *ServerHandler) RunCleanupNow(c echo.Context) error {
	Logger.Info("Retention cleanup triggered via API")

	job, err := serverHandler.DB.CreateJob(database.JobTypeCleanup, "Starting retention cleanup")
	if err != nil {
		Logger.Error("Failed to create cleanup job", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create cleanup job",
		})
	}

	// Run cleanup in goroutine with job tracking
	go func() {
		serverHandler.cleanupJobFuncWithTracking(serverHandler.DB, job.ID)
	}()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Retention cleanup started",
		"jobId":   job.ID.String(),
	})
}
