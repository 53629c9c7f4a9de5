package services

import (
	"encoding/base64"
	"fmt"
	"strings"

	"datalabel-backend/internal/apperrors"
)

// decodeImage accepts raw base64 or a data URL such as data:image/png;base64,....
// field names the request field in validation errors.
func decodeImage(field, encoded string) ([]byte, error) {
	payload := strings.TrimSpace(encoded)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, apperrors.FieldError(field, "data URL must be base64 encoded")
		}
		payload = payload[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes {
		return nil, apperrors.FieldError(field, fmt.Sprintf("image larger than %d bytes", maxImageBytes))
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.FieldError(field, "invalid base64")
	}
	if len(data) == 0 {
		return nil, apperrors.FieldError(field, "empty image")
	}
	return data, nil
}
