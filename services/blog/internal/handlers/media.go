package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/httpserver"
	"github.com/example/blog-platform/services/blog/internal/media"
)

// UploadImage handles POST /v1/uploads/images. The image is either the
// multipart field "image" or the raw request body.
func UploadImage(up *media.Uploader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		limit := int64(media.DefaultMaxBytes)
		if up != nil && up.MaxBytes > 0 {
			limit = up.MaxBytes
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

		var body io.Reader = r.Body
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			file, _, err := r.FormFile("image")
			if err != nil {
				if isTooLarge(err) {
					writeError(w, r, err)
					return
				}
				api.BadRequest(w, "MISSING_IMAGE", "multipart field \"image\" is required",
					httpserver.RequestIDFromContext(r.Context()), nil)
				return
			}
			defer file.Close()
			body = file
		}

		res, err := up.Upload(r.Context(), userID, body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, res)
	}
}

func isTooLarge(err error) bool {
	var tooBig *http.MaxBytesError
	return errors.As(err, &tooBig)
}
