package api

import "net/http"

const userAgent = "speech-to-text/1.0 (+https://github.com/PranayPant/speech-to-text)"

// Common request headers.
var baseHeaders = map[string]string{
	"Accept": "application/json, text/plain, */*",
	// Accept-Encoding stays unset so http.Transport negotiates and decodes gzip.
	"User-Agent": userAgent,
}

// requestHeaders returns the headers sent with every AssemblyAI request.
func requestHeaders(apiKey string) http.Header {
	h := make(http.Header)
	for k, v := range baseHeaders {
		h.Set(k, v)
	}
	h.Set("Authorization", apiKey)
	return h
}
