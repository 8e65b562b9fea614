package httputil

import (
	"fmt"
	"net/http"
	"strconv"
)

// GetOptionalUintQueryParameter reads an unsigned integer query parameter.
// It returns false for ok when the parameter is absent. A malformed value
// writes a 400 status code and the reason into the ResponseWriter, and
// returns a non-nil error.
func GetOptionalUintQueryParameter(w http.ResponseWriter, r *http.Request, key string) (value uint64, ok bool, err error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("expected %s to be an unsigned integer", key), http.StatusBadRequest)
		return 0, false, err
	}
	return value, true, nil
}
