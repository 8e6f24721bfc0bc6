package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/ppiankov/evidencecheck/internal/logging"
	"github.com/ppiankov/evidencecheck/internal/model"
	"github.com/ppiankov/evidencecheck/internal/pipeline"
	"github.com/ppiankov/evidencecheck/internal/worker"
)

type server struct {
	analyzer Analyzer
	maxBody  int64
	sampling model.SamplingConfig
	log      *slog.Logger
}

func newServer(analyzer Analyzer) *server {
	cfg := analyzer.Config()
	maxBody := cfg.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 50 << 20
	}
	return &server{
		analyzer: analyzer,
		maxBody:  maxBody,
		sampling: cfg.Sampling,
		log:      logging.New("api"),
	}
}

// AnalysisResponse is the /analyze response body
type AnalysisResponse struct {
	Success          bool                `json:"success"`
	ID               string              `json:"id,omitempty"`
	ConsistencyScore int                 `json:"consistency_score"`
	Details          []model.ClaimResult `json:"details"`
	VideoAnalysis    model.VideoAnalysis `json:"video_analysis"`
	TextClaims       model.TextClaims    `json:"text_claims"`
	Warnings         []string            `json:"warnings,omitempty"`
	LLM              *model.LLMSummary   `json:"llm,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// TextOnlyResponse is the /analyze-text-only response body
type TextOnlyResponse struct {
	Success bool             `json:"success"`
	Claims  model.TextClaims `json:"claims"`
	Spans   []model.Claim    `json:"spans"`
}

// analyzeInput is the decoded /analyze request, whatever its encoding
type analyzeInput struct {
	Text       string
	Subject    string
	Frames     []model.FrameDetection
	HasFrames  bool
	ClipURL    string
	ClipStart  string
	VideoGiven bool
}

type analyzeBody struct {
	TextDescription string          `json:"text_description"`
	Subject         string          `json:"subject"`
	Detections      json.RawMessage `json:"detections"`
	ClipURL         string          `json:"clip_url"`
	ClipStart       string          `json:"clip_start"`
}

type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return errBadRequest{msg: fmt.Sprintf(format, args...)}
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": "API is operational"})
}

func (s *server) analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	in, err := s.decodeAnalyze(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if in.VideoGiven {
		writeError(w, http.StatusBadRequest, "raw video is not accepted; submit detections or clip_url")
		return
	}
	if strings.TrimSpace(in.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text description is required")
		return
	}

	req := pipeline.Request{Subject: in.Subject, Text: pipeline.LiteralText(in.Text)}
	switch {
	case in.HasFrames:
		req.Frames = pipeline.StaticFrames(pipeline.Sample(in.Frames, s.sampling))
	case in.ClipURL != "":
		source, err := s.analyzer.ClipSource(in.ClipURL)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Frames = source
	}
	if in.ClipStart != "" {
		seconds, err := worker.ParseClipStart(in.ClipStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.ClipStart = &seconds
	}

	analysis, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.log.Error("analysis failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, AnalysisResponse{
			Details: []model.ClaimResult{},
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, AnalysisResponse{
		Success:          true,
		ID:               analysis.ID,
		ConsistencyScore: analysis.Report.OverallScore,
		Details:          analysis.Report.Details,
		VideoAnalysis:    analysis.VideoAnalysis,
		TextClaims:       analysis.TextClaims,
		Warnings:         analysis.Warnings,
		LLM:              analysis.LLM,
	})
}

func (s *server) analyzeTextOnly(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	in, err := s.decodeAnalyze(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if strings.TrimSpace(in.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text description is required")
		return
	}

	claims := s.analyzer.ExtractClaims(in.Text)
	spans := claims.Claims()
	if spans == nil {
		spans = []model.Claim{}
	}
	writeJSON(w, http.StatusOK, TextOnlyResponse{
		Success: true,
		Claims:  model.NewTextClaims(claims, in.Text),
		Spans:   spans,
	})
}

// decodeAnalyze accepts JSON, multipart and urlencoded bodies
func (s *server) decodeAnalyze(r *http.Request) (analyzeInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var body analyzeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return analyzeInput{}, fmt.Errorf("read body: %w", err)
			}
			return analyzeInput{}, badRequest("invalid json: %v", err)
		}
		in := analyzeInput{
			Text:      body.TextDescription,
			Subject:   body.Subject,
			ClipURL:   body.ClipURL,
			ClipStart: body.ClipStart,
		}
		if len(body.Detections) > 0 && string(body.Detections) != "null" {
			frames, err := pipeline.DecodeDetections(bytes.NewReader(body.Detections))
			if err != nil {
				return analyzeInput{}, badRequest("invalid detections: %v", err)
			}
			in.Frames, in.HasFrames = frames, true
		}
		return in, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.maxBody); err != nil {
			return analyzeInput{}, fmt.Errorf("parse form: %w", err)
		}
		in := formInput(r)
		if video, _, err := r.FormFile("video"); err == nil {
			_ = video.Close()
			in.VideoGiven = true
		}
		file, _, err := r.FormFile("detections")
		switch {
		case err == nil:
			defer func() { _ = file.Close() }()
			frames, err := pipeline.DecodeDetections(file)
			if err != nil {
				return analyzeInput{}, badRequest("invalid detections: %v", err)
			}
			in.Frames, in.HasFrames = frames, true
		case errors.Is(err, http.ErrMissingFile):
		default:
			return analyzeInput{}, fmt.Errorf("read detections: %w", err)
		}
		if raw := r.FormValue("detections_json"); raw != "" && !in.HasFrames {
			frames, err := pipeline.DecodeDetections(strings.NewReader(raw))
			if err != nil {
				return analyzeInput{}, badRequest("invalid detections: %v", err)
			}
			in.Frames, in.HasFrames = frames, true
		}
		return in, nil

	default:
		if err := r.ParseForm(); err != nil {
			return analyzeInput{}, fmt.Errorf("parse form: %w", err)
		}
		in := formInput(r)
		if raw := r.FormValue("detections_json"); raw != "" {
			frames, err := pipeline.DecodeDetections(strings.NewReader(raw))
			if err != nil {
				return analyzeInput{}, badRequest("invalid detections: %v", err)
			}
			in.Frames, in.HasFrames = frames, true
		}
		return in, nil
	}
}

func formInput(r *http.Request) analyzeInput {
	return analyzeInput{
		Text:      r.FormValue("text_description"),
		Subject:   r.FormValue("subject"),
		ClipURL:   r.FormValue("clip_url"),
		ClipStart: r.FormValue("clip_start"),
	}
}

func (s *server) fail(w http.ResponseWriter, err error) {
	var bad errBadRequest
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, bad.msg)
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		s.log.Warn("bad request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
