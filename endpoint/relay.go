package endpoint

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/radlab/llm-router/apierror"
	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/internal/apitypes"
	"github.com/radlab/llm-router/internal/logging"
	"github.com/radlab/llm-router/internal/metrics"
)

// maxStreamLine bounds a single streamed frame. vLLM chunks with long
// logprobs can exceed bufio's default 64K.
const maxStreamLine = 1 << 20

// relayStream opens the upstream call in streaming mode and forwards the
// frames to the client as they arrive, one flush per frame. The provider
// lock is released as soon as the upstream side is drained.
func (e *Engine) relayStream(ctx context.Context, w http.ResponseWriter, call *Call, provider catalog.ProviderSpec, dialect apitypes.Spec, method, url string, release func()) error {
	resp, err := e.doRequest(ctx, call, provider, method, url, call.Envelope)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		e.Chooser.Feedback(call.Model, provider.ID, call.Elapsed(), true)
		metrics.ProviderErrors.WithLabelValues(provider.ID, "http_error").Inc()
		return apierror.UpstreamError(resp.StatusCode, truncate(string(body), 512))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		// Client-class upstream errors relay verbatim, buffered.
		body, _ := io.ReadAll(resp.Body)
		e.Chooser.Feedback(call.Model, provider.ID, call.Elapsed(), false)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, err := w.Write(body)
		return err
	}

	flusher, _ := w.(http.Flusher)
	if dialect.StreamFraming == apitypes.FramingSSE {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Content-Type", "application/x-ndjson")
	}
	w.WriteHeader(http.StatusOK)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if _, err := w.Write(line); err != nil {
			// Client went away; abort the upstream read.
			return nil
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return nil
		}
		if len(line) > 0 {
			metrics.StreamChunks.WithLabelValues(string(provider.APIType)).Inc()
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		// Headers are out; the best we can do is a terminal error frame.
		e.Chooser.Feedback(call.Model, provider.ID, call.Elapsed(), true)
		metrics.ProviderErrors.WithLabelValues(provider.ID, "stream_interrupted").Inc()
		logging.FromContext(ctx).Warn("upstream stream interrupted",
			"model", call.Model, "provider", provider.ID, "err", err)
		writeStreamError(w, dialect.StreamFraming, err)
		if flusher != nil {
			flusher.Flush()
		}
		release()
		return nil
	}

	e.Chooser.Feedback(call.Model, provider.ID, call.Elapsed(), false)
	release()
	return nil
}

func writeStreamError(w http.ResponseWriter, framing apitypes.Framing, err error) {
	frame, _ := json.Marshal(map[string]string{"error": err.Error()})
	if framing == apitypes.FramingSSE {
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(frame)
		_, _ = w.Write([]byte("\n\n"))
		return
	}
	_, _ = w.Write(frame)
	_, _ = w.Write([]byte("\n"))
}
