package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"agora/internal/domain"
	"agora/internal/metrics"
	"agora/internal/pipeline"
)

const maxAudioUpload = 10 << 20 // 10 MiB, matches the capture side's scale

// Handlers exposes the pipeline boundary over HTTP. Each capability is an
// interface slice of the core so tests swap in fakes.
type Handlers struct {
	scorer      pipeline.Scorer
	transcriber pipeline.Transcriber
	synth       pipeline.Synthesizer
	publisher   pipeline.AudioPublisher
	cache       *AudioCache
	orch        *pipeline.Orchestrator
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewHandlers(
	scorer pipeline.Scorer,
	transcriber pipeline.Transcriber,
	synth pipeline.Synthesizer,
	publisher pipeline.AudioPublisher,
	cache *AudioCache,
	orch *pipeline.Orchestrator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		scorer:      scorer,
		transcriber: transcriber,
		synth:       synth,
		publisher:   publisher,
		cache:       cache,
		orch:        orch,
		metrics:     m,
		logger:      logger,
	}
}

type evaluateRequest struct {
	Proposal string `json:"proposal"`
}

type evaluateResult struct {
	Scores         domain.Scores `json:"scores"`
	ConsensusIndex float64       `json:"consensusIndex"`
	Approved       bool          `json:"approved"`
	HighConsensus  bool          `json:"highConsensus"`
	Response       string        `json:"response"`
	Timestamp      time.Time     `json:"timestamp"`
}

func (h *Handlers) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.Proposal)
	if text == "" {
		writeError(w, http.StatusBadRequest, "proposal text is required")
		return
	}

	eval := h.scorer.Evaluate(text)
	if h.metrics != nil {
		h.metrics.EvaluationServed()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result": evaluateResult{
			Scores:         eval.Scores,
			ConsensusIndex: eval.ConsensusIndex,
			Approved:       eval.Approved,
			HighConsensus:  eval.HighConsensus,
			Response:       eval.ResponseText,
			Timestamp:      time.Now().UTC(),
		},
	})
}

var acceptedUploadTypes = map[string]bool{
	domain.MIMEWebMOpus: true,
	domain.MIMEWebM:     true,
	domain.MIMEMP4:      true,
	domain.MIMEOggOpus:  true,
	"audio/ogg":         true,
	domain.MIMEWav:      true,
	"audio/x-wav":       true,
}

func (h *Handlers) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !acceptedUploadTypes[baseMIME(contentType)] && !acceptedUploadTypes[contentType] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported audio type %q", contentType))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxAudioUpload))
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio upload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pipeline.DefaultTranscriptionTimeout)
	defer cancel()

	text, err := h.transcriber.Transcribe(ctx, domain.Recording{Data: data, MIMEType: contentType})
	if err != nil {
		h.logger.Error("transcription failed", "error", err)
		writeError(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	resp := map[string]any{"success": true, "text": text}
	if lang := r.FormValue("language"); lang != "" {
		resp["language"] = lang
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req domain.SynthesisRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := h.synth.Synthesize(r.Context(), req)
	if err != nil {
		h.logger.Error("synthesis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "speech synthesis failed")
		return
	}

	if h.publisher != nil {
		url, err := h.publisher.Publish(r.Context(), fmt.Sprintf("adhoc-%d", time.Now().UnixNano()), audio)
		if err == nil && url != "" {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "audio_url": url})
			return
		}
		if err != nil {
			h.logger.Warn("publishing synthesized audio", "error", err)
		}
	}

	contentType := audio.MIMEType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(audio.Data)
}

func (h *Handlers) handleAudio(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusNotFound, "local audio cache disabled")
		return
	}

	runID := chi.URLParam(r, "runID")
	audio, ok := h.cache.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "no audio for this run")
		return
	}

	contentType := audio.MIMEType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(audio.Data)
}

func (h *Handlers) handleListen(w http.ResponseWriter, r *http.Request) {
	// The run outlives this request; its lifecycle belongs to the
	// orchestrator, so the request context must not bound it.
	run, err := h.orch.StartVoice(context.Background())
	if err != nil {
		h.logger.Error("starting voice run", "error", err)
		writeError(w, http.StatusInternalServerError, "could not start listening")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"run_id":  run.ID.String(),
	})
}

func (h *Handlers) handleListenStop(w http.ResponseWriter, r *http.Request) {
	h.orch.StopCapture()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) handleGesture(w http.ResponseWriter, r *http.Request) {
	h.orch.Gesture()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"state":  h.orch.State(),
	})
}

func baseMIME(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		return contentType[:i]
	}
	return contentType
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
