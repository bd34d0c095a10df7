package influxdb

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tibber-export/internal/measurement"
)

// WritePoint writes one point and waits for the server to accept it.
//
// Parameters:
//   - ctx: bounds the HTTP request
//   - p: the point to write; its timestamp is used as-is
//
// Returns:
//   - error: nil, ErrNotConnected, or a *WriteError matching ErrClientWrite
//     or ErrServerWrite
func (c *Client) WritePoint(ctx context.Context, p measurement.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pt := write.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time())
	if err := c.writeAPI.WritePoint(ctx, pt); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps a library error to a WriteError.
//
// HTTP 4xx means the point itself was refused and is a client error.
// Everything else, including transport failures and timeouts, is a
// server error.
func classify(err error) *WriteError {
	status := statusCode(err)
	class := ClassServer
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		class = ClassClient
	}
	return &WriteError{Class: class, StatusCode: status, Err: err}
}

// statusCode extracts the HTTP status from a library error, or 0.
func statusCode(err error) int {
	var httpErr *ihttp.Error
	if errors.As(err, &httpErr) && httpErr.StatusCode != 0 {
		return httpErr.StatusCode
	}

	// Some library paths flatten the error to "<code> <status text>: <message>".
	code, _, ok := strings.Cut(err.Error(), " ")
	if !ok || len(code) != 3 {
		return 0
	}
	n, convErr := strconv.Atoi(code)
	if convErr != nil || n < 100 || n > 599 {
		return 0
	}
	return n
}
