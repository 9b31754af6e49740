package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/posledger/internal/domain/apperr"
)

// statusOf maps an error kind to an HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"kind","message"}. Errors without a domain kind
// are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	msg := apperr.Message(err)

	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request error",
			zap.Error(err),
			zap.Stringer("kind", kind),
		)
		if kind == apperr.KindUnknown {
			msg = "internal server error"
		}
	}
	writeProblem(w, status, kind.String(), msg)
}

func writeProblem(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		fieldStr(e, "kind", kind)
		fieldStr(e, "message", msg)
		e.ObjEnd()
	})
}
