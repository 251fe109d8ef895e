package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
)

// ParsePathID reads a positive int64 chi URL parameter.
func ParsePathID(r *http.Request, param string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid path id").WithDetails(map[string]any{"field": param})
	}
	return value, nil
}
