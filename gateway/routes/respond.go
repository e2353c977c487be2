package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	nativecommon "epkfarm/native/common"
	"epkfarm/native/farm"
	"epkfarm/native/token"
	"epkfarm/services/eventindex"
)

const requestLimit = 1 << 16 // 64 KiB

func decodeRequest(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeInternalError(w, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusInternalServerError, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := ""
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		payload = []byte(fmt.Sprintf("{\"error\":%q}", http.StatusText(status)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeFarmError maps node errors onto HTTP status codes. Unclassified
// errors are reported as 500 without their message.
func writeFarmError(w http.ResponseWriter, err error) {
	status := mapFarmError(err)
	if status == http.StatusInternalServerError {
		writeInternalError(w, errors.New("internal error"))
		return
	}
	writeJSONError(w, status, err)
}

func mapFarmError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, farm.ErrZeroAmount),
		errors.Is(err, farm.ErrInvalidWindow),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrNegativeAmount),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, eventindex.ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrInsufficientBalance),
		errors.Is(err, nativecommon.ErrInsufficientAllowance):
		return http.StatusPaymentRequired
	case errors.Is(err, token.ErrMintUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, token.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, farm.ErrNoStake):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
