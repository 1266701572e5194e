package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"advert-service/internal/domain"
)

const maxBodyBytes = 1 << 20

var errInvalidPayload = errors.New("invalid request payload")

// fieldError reports a body key that is not accepted for the operation.
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("field %q %s", e.field, e.reason)
}

// decodeObject reads a single JSON object from the body.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", errInvalidPayload)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", errInvalidPayload)
	}
	return fields, nil
}

func decodeString(field string, raw json.RawMessage) (string, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return "", &fieldError{field: field, reason: "must be a string"}
	}
	return *s, nil
}

// timestampLayouts accepts RFC 3339 and the zone-less ISO 8601 form the API
// itself used to emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func decodeTimestamp(field string, raw json.RawMessage) (time.Time, error) {
	s, err := decodeString(field, raw)
	if err != nil {
		return time.Time{}, &fieldError{field: field, reason: "must be an ISO-8601 timestamp"}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &fieldError{field: field, reason: "must be an ISO-8601 timestamp"}
}

// decodeCreateRequest maps a POST body onto a new advert. title, description
// and owner must be present, possibly empty; id and creation_date are
// honoured when present.
func decodeCreateRequest(w http.ResponseWriter, r *http.Request) (*domain.Advert, error) {
	fields, err := decodeObject(w, r)
	if err != nil {
		return nil, err
	}

	ad := &domain.Advert{}
	for key, raw := range fields {
		switch key {
		case "title":
			ad.Title, err = decodeString(key, raw)
		case "description":
			ad.Description, err = decodeString(key, raw)
		case "owner":
			ad.Owner, err = decodeString(key, raw)
		case "id":
			if err = json.Unmarshal(raw, &ad.ID); err != nil || ad.ID <= 0 {
				err = &fieldError{field: key, reason: "must be a positive integer"}
			}
		case "creation_date":
			ad.CreationDate, err = decodeTimestamp(key, raw)
		default:
			err = &fieldError{field: key, reason: "is not an advert field"}
		}
		if err != nil {
			return nil, err
		}
	}

	for _, key := range []string{"title", "description", "owner"} {
		if _, ok := fields[key]; !ok {
			return nil, &fieldError{field: key, reason: "is required"}
		}
	}
	return ad, nil
}

// patchFromFields accepts only the mutable fields.
func patchFromFields(fields map[string]json.RawMessage) (domain.AdvertPatch, error) {
	var patch domain.AdvertPatch

	for key, raw := range fields {
		var target **string
		switch key {
		case "title":
			target = &patch.Title
		case "description":
			target = &patch.Description
		case "owner":
			target = &patch.Owner
		default:
			return patch, &fieldError{field: key, reason: "cannot be updated"}
		}

		value, err := decodeString(key, raw)
		if err != nil {
			return patch, err
		}
		*target = &value
	}
	return patch, nil
}
