package engine

import (
	"fmt"
	"os"

	"github.com/drummonds/godocx/config"
	"github.com/drummonds/godocx/render"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	serverConfig := serverHandler.ServerConfig
	sofficeChecks(serverConfig)
	visionChecks(serverConfig)
	if err := directoryChecks("upload", serverConfig.UploadPath); err != nil {
		return err
	}
	if err := directoryChecks("output", serverConfig.OutputPath); err != nil {
		return err
	}
	if err := directoryChecks("artifact", serverConfig.ArtifactPath); err != nil {
		return err
	}
	return nil
}

// sofficeChecks validates the LibreOffice binary used to render DOCX pages.
// A missing binary degrades the quality loop, it does not block startup.
func sofficeChecks(serverConfig config.ServerConfig) error {
	path := serverConfig.SofficePath
	if path == "" || path == "auto" {
		path = render.FindSoffice()
	}
	if path == "" {
		Logger.Warn("LibreOffice not found, DOCX rendering and visual validation will be unavailable")
		return nil
	}

	sofficeInfo, err := os.Stat(path)
	if err != nil {
		Logger.Warn("LibreOffice executable not found, visual validation will be disabled", "path", path, "error", err)
		return nil // Don't return error, just continue without visual validation
	}
	if sofficeInfo.IsDir() {
		Logger.Warn("LibreOffice path is a directory, not an executable, visual validation will be disabled", "path", path)
		return nil
	}
	Logger.Info("LibreOffice executable found, visual validation enabled", "path", path)
	return nil
}

// visionChecks reports whether the vision API credential is present.
func visionChecks(serverConfig config.ServerConfig) {
	if serverConfig.GeminiAPIKey == "" {
		Logger.Warn("GEMINI_API_KEY not set, difference detection and layout advisories will be skipped")
		return
	}
	Logger.Info("Vision API credential configured")
}

// directoryChecks ensures a working directory exists
func directoryChecks(name, path string) error {
	if path == "" {
		Logger.Warn("Path not configured", "directory", name)
		return nil
	}

	// Check if directory exists
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Create the directory
			Logger.Info("Creating directory", "directory", name, "path", path)
			err = os.MkdirAll(path, 0755)
			if err != nil {
				Logger.Error("Failed to create directory", "directory", name, "path", path, "error", err)
				return err
			}
			Logger.Info("Directory created successfully", "directory", name, "path", path)
			return nil
		}
		Logger.Error("Error checking directory", "directory", name, "path", path, "error", err)
		return err
	}

	// Check if it's actually a directory
	if !info.IsDir() {
		Logger.Error("Path exists but is not a directory", "directory", name, "path", path)
		return fmt.Errorf("%s path is not a directory: %s", name, path)
	}

	Logger.Info("Directory exists", "directory", name, "path", path)
	return nil
}
