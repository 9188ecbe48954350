package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/petal-labs/toolstream/sse"
	"github.com/petal-labs/toolstream/tool"
)

// Health reports liveness, uptime and the number of registered tools.
func (s *Server) Health() Health {
	var inFlight int64
	if s.load != nil {
		inFlight = s.load.InFlight()
	}
	status := StatusOK
	if s.degradedInFlight > 0 && inFlight >= s.degradedInFlight {
		status = StatusDegraded
	}
	return Health{
		Status:        status,
		UptimeSeconds: s.now().Sub(s.started).Seconds(),
		ToolCount:     s.dispatcher.Registry().Len(),
		InFlight:      inFlight,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

// handleListTools returns every registered tool in registration order.
func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	regs := s.dispatcher.Registry().List()
	out := ToolList{Tools: make([]ToolInfo, 0, len(regs))}
	for _, reg := range regs {
		out.Tools = append(out.Tools, ToolInfo{
			Name:        reg.Name,
			Description: reg.Description,
			InputSchema: reg.InputSchema,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleInvoke runs a single-result tool and returns its item.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	payload, ok := s.readPayload(w, r)
	if !ok {
		return
	}

	ctx := s.invocationContext(w, r)
	item, err := s.dispatcher.Invoke(ctx, name, payload)
	if err != nil {
		s.writeToolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleStream runs a tool and frames its output as an event stream.
// Lookup and validation failures are answered as plain JSON errors.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	payload, ok := s.readPayload(w, r)
	if !ok {
		return
	}

	ctx := s.invocationContext(w, r)
	stream, err := s.dispatcher.Stream(ctx, name, payload)
	if err != nil {
		s.writeToolError(w, err)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		stream.Close()
		writeError(w, http.StatusInternalServerError, tool.ErrorKindInternal, err.Error(), nil)
		return
	}

	stop := writer.StartHeartbeat(s.heartbeat)
	err = sse.Frame(ctx, name, stream, writer)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.logger.Debug("stream closed by client", "tool", name, "invocation_id", tool.InvocationID(ctx))
	case tool.ErrorKind(err) == tool.ErrorKindHandler:
		// Already delivered to the client as an error event.
	default:
		s.logger.Warn("stream aborted", "tool", name, "invocation_id", tool.InvocationID(ctx), "error", err)
	}
}

func (s *Server) invocationContext(w http.ResponseWriter, r *http.Request) context.Context {
	id := tool.NewInvocationID()
	w.Header().Set(HeaderInvocationID, id)
	return tool.WithInvocationID(r.Context(), id)
}

func (s *Server) readPayload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorKindPayloadTooLarge, "request body too large", nil)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, tool.ErrorKindValidation, "failed to read request body", nil)
		return nil, false
	}
	return payload, true
}

func (s *Server) writeToolError(w http.ResponseWriter, err error) {
	kind := tool.ErrorKind(err)

	var details any
	var verr *tool.ValidationError
	if errors.As(err, &verr) {
		details = verr.Violations
	}

	message := err.Error()
	var herr *tool.HandlerError
	if errors.As(err, &herr) {
		message = herr.Message
	}

	writeError(w, statusForKind(kind), kind, message, details)
}

func statusForKind(kind string) int {
	switch kind {
	case tool.ErrorKindUnknownTool:
		return http.StatusNotFound
	case tool.ErrorKindValidation:
		return http.StatusBadRequest
	case tool.ErrorKindStreamingOnly, tool.ErrorKindDuplicateTool:
		return http.StatusConflict
	case ErrorKindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// isMaxBytesError checks if the error is from http.MaxBytesReader.
func isMaxBytesError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
