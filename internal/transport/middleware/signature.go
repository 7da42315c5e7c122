// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adiadia/hitl-gateway/internal/signing"
)

// maxSignedBody caps how much of a webhook body is buffered for
// verification.
const maxSignedBody = 1 << 20

// VerifySignature checks the X-Signature HMAC of the raw request body. The
// body is restored for the next handler. An empty secret disables the check.
func VerifySignature(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if strings.TrimSpace(secret) == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
				_ = r.Body.Close()
				if err != nil {
					http.Error(w, "failed to read request body", http.StatusBadRequest)
					return
				}
			}
			if len(body) > maxSignedBody {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			if !signing.Verify(secret, body, r.Header.Get(signing.Header)) {
				logger.Warn("webhook signature rejected",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
