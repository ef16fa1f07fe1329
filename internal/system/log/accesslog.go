/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package log

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

type accessFieldsKey struct{}

// accessFields collects the fields handlers attach to the access log line of a request.
type accessFields struct {
	mu     sync.Mutex
	fields []Field
}

// AddAccessFields attaches fields to the access log line of the request carried by ctx. It is a
// no-op when ctx did not pass through AccessLogHandler.
func AddAccessFields(ctx context.Context, fields ...Field) {
	af, ok := ctx.Value(accessFieldsKey{}).(*accessFields)
	if !ok {
		return
	}
	af.mu.Lock()
	af.fields = append(af.fields, fields...)
	af.mu.Unlock()
}

// AccessLogHandler writes one structured line per request with the status, size and latency,
// followed by any workflow fields the handler attached through AddAccessFields.
func AccessLogHandler(logger *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		af := &accessFields{}
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(context.WithValue(r.Context(), accessFieldsKey{}, af)))

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		fields := []Field{
			String("remoteAddr", host),
			String("method", r.Method),
			String("path", r.URL.Path),
			Int("status", lrw.statusCode),
			Int("bytes", lrw.size),
			Duration("latency", time.Since(start)),
		}
		af.mu.Lock()
		fields = append(fields, af.fields...)
		af.mu.Unlock()

		logger.Info("HTTP request served", fields...)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := lrw.ResponseWriter.Write(b)
	lrw.size += size
	return size, err
}
