package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ErrFatalAPI marks provider errors that retrying cannot fix, such as bad
// or unauthorized credentials. Rate limits and exhausted quotas are
// transient and are not fatal.
var ErrFatalAPI = errors.New("fatal API error")

var fatalMarkers = []string{
	"invalid api key",
	"api key not valid",
	"incorrect api key",
	"authentication",
	"unauthenticated",
	"unauthorized",
	"permission denied",
}

// IsFatal reports whether err was classified as a fatal API error.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalAPI)
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
	}

	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
