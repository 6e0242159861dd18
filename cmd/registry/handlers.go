package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/capstan-io/capstan/cmd/registry/middleware"
	"github.com/capstan-io/capstan/internal/registry"
	"github.com/capstan-io/capstan/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// packageParam decodes the :name route parameter. npm clients send scoped
// names URL-encoded as a single segment ("@scope%2fname").
func packageParam(c *gin.Context) string {
	name := c.Param("name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name
}

func writeDenial(c *gin.Context, d *registry.Denial) {
	c.JSON(d.Status, gin.H{"error": d.Code, "reason": d.Reason})
}

func writeInternalError(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":  "internal_error",
		"reason": "internal server error",
	})
}

// handleRemove deletes all versions of a package. The response commits as
// soon as the metadata delete does; tarball cleanup happens in the
// background and never affects the status code.
func handleRemove(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUserFromContext(c)
		name := packageParam(c)

		denial, err := registryService.Remove(c.Request.Context(), name, user)
		if err != nil {
			writeInternalError(c, err)
			return
		}
		if denial != nil {
			writeDenial(c, denial)
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// handlePackageInfo returns the npm package document for a name
func handlePackageInfo(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := packageParam(c)

		pkg, err := registryService.Get(c.Request.Context(), name)
		if err != nil {
			if err == registry.ErrPackageNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": "document not found"})
				return
			}
			writeInternalError(c, err)
			return
		}

		c.JSON(http.StatusOK, packageDocument(c, pkg))
	}
}

// packageDocument builds an npm-style metadata document
func packageDocument(c *gin.Context, pkg *types.Package) gin.H {
	versions := make(gin.H, len(pkg.Versions))
	times := gin.H{}
	for i := range pkg.Versions {
		v := &pkg.Versions[i]

		manifest := gin.H{
			"name":        v.Name,
			"version":     v.Version,
			"description": v.Description,
			"dist": gin.H{
				"shasum":  v.Shasum,
				"tarball": tarballURL(c, v.Name, v.Version),
			},
		}
		for key, value := range v.Manifest {
			if _, reserved := manifest[key]; !reserved {
				manifest[key] = value
			}
		}

		versions[v.Version] = manifest
		times[v.Version] = v.CreatedAt.Format(time.RFC3339)
	}

	maintainers := make([]gin.H, 0, len(pkg.Maintainers))
	for _, m := range pkg.Maintainers {
		maintainers = append(maintainers, gin.H{"name": m})
	}

	doc := gin.H{
		"_id":         pkg.Name,
		"name":        pkg.Name,
		"versions":    versions,
		"maintainers": maintainers,
		"time":        times,
	}
	if latest := pkg.LatestVersion(); latest != nil {
		doc["dist-tags"] = gin.H{"latest": latest.Version}
	}
	return doc
}

func tarballURL(c *gin.Context, name, version string) string {
	flat := strings.ReplaceAll(strings.TrimPrefix(name, "@"), "/", "-")
	return fmt.Sprintf("http://%s/api/v1/npm/%s/-/%s-%s.tgz",
		c.Request.Host, url.PathEscape(name), flat, version)
}

// handlePublish stores one new package version
func handlePublish(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUserFromContext(c)
		name := packageParam(c)

		var req types.PublishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "reason": err.Error()})
			return
		}
		if req.Name == "" {
			req.Name = name
		}
		if req.Name != name {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "reason": "package name does not match URL"})
			return
		}

		denial, err := registryService.Publish(c.Request.Context(), user, &req)
		if err != nil {
			if strings.Contains(err.Error(), "invalid version") ||
				strings.Contains(err.Error(), "already exists") ||
				strings.Contains(err.Error(), "exactly one version") {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "reason": err.Error()})
				return
			}
			writeInternalError(c, err)
			return
		}
		if denial != nil {
			writeDenial(c, denial)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"ok": true})
	}
}

// handleDownload streams a version tarball. The filename carries the
// version: "<flat-name>-<version>.tgz".
func handleDownload(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := packageParam(c)
		filename := c.Param("filename")

		flat := strings.ReplaceAll(strings.TrimPrefix(name, "@"), "/", "-")
		version := strings.TrimSuffix(strings.TrimPrefix(filename, flat+"-"), ".tgz")

		_, content, err := registryService.Download(c.Request.Context(), name, version)
		if err != nil {
			if err == registry.ErrPackageNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": "document not found"})
				return
			}
			writeInternalError(c, err)
			return
		}

		c.Data(http.StatusOK, "application/octet-stream", content)
	}
}
