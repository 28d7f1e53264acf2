package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mwiater/semsearch/internal/document"
	"github.com/mwiater/semsearch/internal/search"
)

type searchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Query   string                  `json:"query"`
	Count   int                     `json:"count"`
	Results []search.ScoredDocument `json:"results"`
}

type documentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

type documentResponse struct {
	Chunks   int `json:"chunks"`
	Upserted int `json:"upserted"`
}

func (s *Server) apiError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// ready aborts with 503 when the engine could not be constructed.
func (s *Server) ready(c *gin.Context) bool {
	if s.engine == nil {
		s.apiError(c, http.StatusServiceUnavailable, s.initErr)
		return false
	}
	return true
}

func (s *Server) apiHealth(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": s.initErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "initialized": s.engine.Initialized()})
}

func (s *Server) apiInfo(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	info, err := s.engine.CollectionInfo(c.Request.Context())
	if err != nil {
		s.apiError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) apiSearch(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.apiError(c, http.StatusBadRequest, err)
		return
	}
	results, err := s.engine.SearchWithScores(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		s.apiError(c, statusFor(err), err)
		return
	}
	if results == nil {
		results = []search.ScoredDocument{}
	}
	c.JSON(http.StatusOK, searchResponse{Query: req.Query, Count: len(results), Results: results})
}

func (s *Server) apiAddDocument(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.apiError(c, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.AddDocuments(c.Request.Context(), []document.Document{document.FromText(req.Content, req.Title)})
	if err != nil {
		s.apiError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, documentResponse{Chunks: res.Chunks, Upserted: res.Upserted})
}

func (s *Server) apiDeleteIndex(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	deleted, err := s.engine.DeleteIndex(c.Request.Context())
	if err != nil {
		s.apiError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
