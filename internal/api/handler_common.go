package api

import (
	"fmt"
	"net/http"
)

func requireQueryOrWriteInvalid(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := RequireQuery(r, key)
	if err != nil {
		writeBadInput(w, err.Error())
		return "", false
	}
	return v, true
}

func parseIntQueryOrWriteInvalid(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	n, err := ParseIntQuery(r, key, def)
	if err != nil {
		writeBadInput(w, err.Error())
		return 0, false
	}
	return n, true
}

func requireUUIDPathParam(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	fieldName string,
) (string, bool) {
	value := PathParam(r, paramName)
	if !ValidateUUID(value) {
		writeBadInput(w, fmt.Sprintf("%s: must be a valid UUID", fieldName))
		return "", false
	}
	return value, true
}
