package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/konfigurator/catalogstore/internal/article"
	"github.com/konfigurator/catalogstore/internal/article/service"
	"github.com/konfigurator/catalogstore/pkg/logger"
)

var log = logger.For("http")

// Options tunes route behaviour that is configuration rather than request input.
type Options struct {
	// FallbackAllWhenNoKeys is the lookup default when the request does not set ?fallback=.
	FallbackAllWhenNoKeys bool
}

type nameRequest struct {
	Name string `json:"name"`
}

// statusFor maps a store error to an HTTP status.
func statusFor(err error) int {
	switch article.KindOf(err) {
	case article.KindValidation:
		return http.StatusBadRequest
	case article.KindDuplicateName:
		return http.StatusConflict
	case article.KindNotFound:
		return http.StatusNotFound
	}
	if errors.Is(err, article.ErrArticleAbsent) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": err.Error()}
	if k := article.KindOf(err); k != "" {
		body["kind"] = k
	}
	c.JSON(status, body)
}

func RegisterArticleRoutes(r gin.IRouter, svc service.Service, opts Options) {
	r.GET("/api/articles", func(c *gin.Context) {
		list, err := svc.ListArticles(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.POST("/api/articles", func(c *gin.Context) {
		var req nameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := svc.CreateArticle(c.Request.Context(), req.Name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	})

	r.PATCH("/api/articles/:id", func(c *gin.Context) {
		var req nameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := svc.RenameArticle(c.Request.Context(), c.Param("id"), req.Name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	})

	r.DELETE("/api/articles/:id", func(c *gin.Context) {
		a, err := svc.DeleteArticle(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if a == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, a)
	})

	r.POST("/api/articles/:id/clone", func(c *gin.Context) {
		var req nameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := svc.CloneArticle(c.Request.Context(), c.Param("id"), req.Name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	})

	r.GET("/api/articles/:id/versions", func(c *gin.Context) {
		list, err := svc.ListVersions(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	// the body is the catalog document itself
	r.POST("/api/articles/:id/versions", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		v, err := svc.SaveSnapshot(c.Request.Context(), c.Param("id"), body)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"articleId": c.Param("id"), "versionId": v})
	})

	r.GET("/api/articles/:id/versions/:version", func(c *gin.Context) {
		v, err := strconv.ParseInt(c.Param("version"), 10, 64)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "version must be a positive integer"})
			return
		}
		snap, err := svc.GetVersion(c.Request.Context(), c.Param("id"), v)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	r.GET("/api/articles/:id/latest", func(c *gin.Context) {
		latest, err := svc.GetLatestCatalog(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if latest == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no catalog"})
			return
		}
		c.JSON(http.StatusOK, latest)
	})

	r.GET("/api/lookup", func(c *gin.Context) {
		lo := article.LookupOptions{FallbackAllWhenNoKeys: opts.FallbackAllWhenNoKeys}
		if raw, ok := c.GetQuery("fallback"); ok {
			fb, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "fallback must be a boolean"})
				return
			}
			lo.FallbackAllWhenNoKeys = fb
		}
		res, err := svc.GetArticleDataAndSourcesByName(c.Request.Context(), c.Query("name"), lo)
		if err != nil {
			writeError(c, err)
			return
		}
		if res == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.PUT("/api/sources/:key", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.PutSource(c.Request.Context(), c.Param("key"), body); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
