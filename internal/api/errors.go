package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cascadia-sim/cascadia/internal/engine"
)

func writeBadInput(w http.ResponseWriter, details string) {
	WriteError(w, http.StatusBadRequest, engine.KindBadInput, details)
}

func writePayloadTooLarge(w http.ResponseWriter, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", msg)
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		writePayloadTooLarge(w, tooLarge.Limit)
		return
	}
	writeBadInput(w, err.Error())
}

// writeEngineError maps engine service errors to HTTP response codes.
func writeEngineError(w http.ResponseWriter, err error) {
	if err == nil {
		WriteError(w, http.StatusInternalServerError, engine.KindInternal, "internal server error")
		return
	}

	var svcErr *engine.ServiceError
	if errors.As(err, &svcErr) {
		var status int
		switch svcErr.Kind {
		case engine.KindBadInput, engine.KindUnknownScenario, engine.KindMissingAnchor:
			status = http.StatusBadRequest
		case engine.KindNotFound:
			status = http.StatusNotFound
		case engine.KindConflict:
			status = http.StatusConflict
		default:
			status = http.StatusInternalServerError
		}
		WriteJSON(w, status, ErrorResponse{
			Error:          svcErr.Kind,
			Details:        svcErr.Message,
			RequiredAnchor: svcErr.RequiredAnchor,
		})
		return
	}
	WriteError(w, http.StatusInternalServerError, engine.KindInternal, "internal server error")
}
