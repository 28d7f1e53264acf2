package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mwiater/semsearch/internal/document"
	"github.com/mwiater/semsearch/internal/embedding"
	"github.com/mwiater/semsearch/internal/logging"
	"github.com/mwiater/semsearch/internal/search"
)

const (
	tabSearch = "search"
	tabUpload = "upload"
	tabInfo   = "info"
)

type resultView struct {
	Rank     int
	Score    string
	Content  string
	Metadata string
}

type configRow struct {
	Label string
	Value string
}

type pageData struct {
	Tab         string
	InitError   string
	Initialized bool
	Info        *search.Info
	InfoError   string
	TopK        int
	MaxTopK     int
	Query       string
	Results     []resultView
	Searched    bool
	SearchError string
	Flash       string
	FlashLevel  string
	UploadMode  string
	Status      string
	Config      []configRow
}

func (s *Server) page(c *gin.Context, tab string) pageData {
	switch tab {
	case tabSearch, tabUpload, tabInfo:
	default:
		tab = tabSearch
	}
	mode := c.Query("mode")
	if mode != "file" {
		mode = "text"
	}
	p := pageData{
		Tab:        tab,
		TopK:       s.cfg.ClampTopK(0),
		MaxTopK:    s.cfg.Search.MaxTopK,
		Flash:      c.Query("flash"),
		FlashLevel: c.DefaultQuery("level", "success"),
		UploadMode: mode,
	}
	if p.MaxTopK <= 0 {
		p.MaxTopK = 20
	}
	if s.engine == nil {
		p.InitError = s.initErr.Error()
		return p
	}

	p.Initialized = s.engine.Initialized()
	if p.Initialized {
		info, err := s.engine.CollectionInfo(c.Request.Context())
		if err != nil {
			p.InfoError = "Could not fetch index info"
			logging.LogEvent("[WEB] index info failed: %v", err)
		} else {
			p.Info = &info
			p.Status = "Empty"
			if info.TotalVectorCount > 0 {
				p.Status = "Active"
			}
		}
	}
	p.Config = s.configRows(p.Info)
	return p
}

func (s *Server) configRows(info *search.Info) []configRow {
	dim := strconv.Itoa(s.engine.Dimension())
	if info != nil && info.Dimension > 0 {
		dim = strconv.Itoa(info.Dimension)
	}
	vs := s.cfg.VectorStore
	return []configRow{
		{"Embedding Model", s.cfg.Embedding.Model},
		{"Dimension", dim},
		{"Metric", vs.Metric},
		{"Backend", vs.Backend},
		{"Cloud", vs.Cloud},
		{"Region", vs.Region},
		{"Chunk Size", strconv.Itoa(s.cfg.Chunking.Size)},
		{"Chunk Overlap", strconv.Itoa(s.cfg.Chunking.Overlap)},
	}
}

func (s *Server) render(c *gin.Context, status int, p pageData) {
	c.HTML(status, "dashboard.html", p)
}

func (s *Server) redirect(c *gin.Context, tab, flash, level string, extra url.Values) {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("tab", tab)
	if flash != "" {
		q.Set("flash", flash)
		q.Set("level", level)
	}
	c.Redirect(http.StatusSeeOther, "/?"+q.Encode())
}

func (s *Server) dashboard(c *gin.Context) {
	s.render(c, http.StatusOK, s.page(c, c.Query("tab")))
}

func (s *Server) searchForm(c *gin.Context) {
	p := s.page(c, tabSearch)
	p.Query = strings.TrimSpace(c.PostForm("query"))
	if k, err := strconv.Atoi(c.PostForm("top_k")); err == nil {
		p.TopK = s.cfg.ClampTopK(k)
	}
	if s.engine == nil || !p.Initialized || p.Query == "" {
		s.render(c, http.StatusOK, p)
		return
	}

	results, err := s.engine.SearchWithScores(c.Request.Context(), p.Query, p.TopK)
	p.Searched = true
	if err != nil {
		p.SearchError = fmt.Sprintf("Search failed: %v", err)
		s.render(c, statusFor(err), p)
		return
	}
	for i, r := range results {
		p.Results = append(p.Results, resultView{
			Rank:     i + 1,
			Score:    fmt.Sprintf("%.4f", r.Score),
			Content:  r.Content,
			Metadata: prettyJSON(r.Metadata),
		})
	}
	s.render(c, http.StatusOK, p)
}

func (s *Server) uploadText(c *gin.Context) {
	if s.engine == nil {
		s.redirect(c, tabUpload, "Search engine not initialized. Check your API keys.", "error", nil)
		return
	}
	content := c.PostForm("content")
	if strings.TrimSpace(content) == "" {
		s.redirect(c, tabUpload, "Document content is required.", "warning", nil)
		return
	}
	doc := document.FromText(content, strings.TrimSpace(c.PostForm("title")))
	res, err := s.engine.AddDocuments(c.Request.Context(), []document.Document{doc})
	if err != nil {
		s.redirect(c, tabUpload, uploadFailure(err), "error", nil)
		return
	}
	s.redirect(c, tabUpload, fmt.Sprintf("Document uploaded! Created %d chunks.", res.Chunks), "success", nil)
}

func (s *Server) uploadFile(c *gin.Context) {
	fileMode := url.Values{"mode": {"file"}}
	if s.engine == nil {
		s.redirect(c, tabUpload, "Search engine not initialized. Check your API keys.", "error", fileMode)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		s.redirect(c, tabUpload, fmt.Sprintf("Upload failed: %v", err), "error", fileMode)
		return
	}
	name := filepath.Base(fh.Filename)
	if !s.allowed(name) {
		s.redirect(c, tabUpload, fmt.Sprintf("Upload failed: %v: %s", document.ErrUnsupportedType, filepath.Ext(name)), "error", fileMode)
		return
	}

	dir := s.cfg.Server.UploadDir
	if dir == "" {
		dir = "temp_uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.redirect(c, tabUpload, fmt.Sprintf("Upload failed: %v", err), "error", fileMode)
		return
	}
	tmp := filepath.Join(dir, name)
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.LogEvent("[WEB] could not remove %s: %v", tmp, err)
		}
	}()
	if err := c.SaveUploadedFile(fh, tmp); err != nil {
		s.redirect(c, tabUpload, fmt.Sprintf("Upload failed: %v", err), "error", fileMode)
		return
	}

	docs, err := s.engine.LoadDocuments(tmp, "")
	if err != nil {
		s.redirect(c, tabUpload, uploadFailure(err), "error", fileMode)
		return
	}
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = name
	}
	document.SetSource(docs, title)

	res, err := s.engine.AddDocuments(c.Request.Context(), docs)
	if err != nil {
		s.redirect(c, tabUpload, uploadFailure(err), "error", fileMode)
		return
	}
	s.redirect(c, tabUpload, fmt.Sprintf("File uploaded! Created %d chunks from %d pages.", res.Chunks, len(docs)), "success", fileMode)
}

func (s *Server) clearIndex(c *gin.Context) {
	if s.engine == nil {
		s.redirect(c, tabSearch, "Search engine not initialized.", "error", nil)
		return
	}
	if _, err := s.engine.DeleteIndex(c.Request.Context()); err != nil {
		s.redirect(c, tabSearch, fmt.Sprintf("Failed to clear: %v", err), "error", nil)
		return
	}
	s.redirect(c, tabSearch, "Index cleared!", "success", nil)
}

func (s *Server) allowed(name string) bool {
	if !document.Supported(name) {
		return false
	}
	exts := s.cfg.Documents.AllowedExtensions
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func uploadFailure(err error) string {
	var quota *embedding.QuotaError
	if errors.As(err, &quota) {
		return fmt.Sprintf("Upload failed: %v. %s", err, strings.ReplaceAll(strings.TrimSpace(quota.Help()), "\n", " "))
	}
	return fmt.Sprintf("Upload failed: %v", err)
}

func prettyJSON(v map[string]any) string {
	if len(v) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
