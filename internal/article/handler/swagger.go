package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the catalog store.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>catalogstore API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "catalogstore", "version": "v0.1.0" },
  "paths": {
    "/api/articles": {
      "get": { "summary": "List articles ordered by name", "responses": { "200": { "description": "articles" } } },
      "post": {
        "summary": "Create an article",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"}}}}}},
        "responses": { "201": { "description": "created" }, "400": { "description": "invalid name" }, "409": { "description": "duplicate name" } }
      }
    },
    "/api/articles/{id}": {
      "patch": {
        "summary": "Rename an article",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"}}}}}},
        "responses": { "200": { "description": "renamed" }, "400": { "description": "invalid name" }, "404": { "description": "unknown article" }, "409": { "description": "duplicate name" } }
      },
      "delete": { "summary": "Delete an article and its history", "responses": { "200": { "description": "removed article" }, "400": { "description": "protected article" }, "404": { "description": "unknown article" } } }
    },
    "/api/articles/{id}/clone": {
      "post": {
        "summary": "Clone an article with its latest snapshot",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"}}}}}},
        "responses": { "201": { "description": "clone" }, "404": { "description": "unknown source" }, "409": { "description": "duplicate name" } }
      }
    },
    "/api/articles/{id}/versions": {
      "get": { "summary": "List snapshot history oldest first", "responses": { "200": { "description": "versions" }, "404": { "description": "unknown article" } } },
      "post": {
        "summary": "Save a catalog snapshot",
        "requestBody": { "content": { "application/json": { "schema": {"oneOf":[{"type":"array"},{"type":"object"}]}}}},
        "responses": { "201": { "description": "version id" }, "400": { "description": "not a catalog document" }, "404": { "description": "unknown article" } }
      }
    },
    "/api/articles/{id}/versions/{version}": {
      "get": { "summary": "Fetch one snapshot", "responses": { "200": { "description": "snapshot" }, "404": { "description": "unknown version" } } }
    },
    "/api/articles/{id}/latest": {
      "get": { "summary": "Latest catalog and schema", "responses": { "200": { "description": "catalog" }, "404": { "description": "no catalog" } } }
    },
    "/api/lookup": {
      "get": {
        "summary": "Resolve an article by display name with its sources",
        "parameters": [
          { "name": "name", "in": "query", "required": true, "schema": {"type":"string"} },
          { "name": "fallback", "in": "query", "schema": {"type":"boolean"} }
        ],
        "responses": { "200": { "description": "article, latest catalog and sources" }, "404": { "description": "no match" } }
      }
    },
    "/api/sources/{key}": {
      "put": { "summary": "Store a reference source", "responses": { "204": { "description": "stored" }, "400": { "description": "invalid key or JSON" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
