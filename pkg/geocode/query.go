package geocode

import (
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

// Structured query fields accepted by the Census address endpoint.
const (
	FieldStreet = "street"
	FieldCity   = "city"
	FieldState  = "state"
	FieldZip    = "zip"
)

var structuredFields = map[string]bool{
	FieldStreet: true,
	FieldCity:   true,
	FieldState:  true,
	FieldZip:    true,
}

// Query is either a FreeForm address or a Structured set of address fields.
type Query interface {
	isQuery()
}

// FreeForm is a single-line address such as "175 5th Avenue NYC".
type FreeForm string

// Structured holds discrete address components keyed by the Field constants.
// Keys outside that set are dropped when the request is built. Not every
// field has to be present.
type Structured map[string]string

func (FreeForm) isQuery()   {}
func (Structured) isQuery() {}

// params returns the endpoint-specific parameters for q.
func (c *Census) params(q Query) (string, url.Values, error) {
	params := url.Values{}
	var endpoint string

	switch q := q.(type) {
	case FreeForm:
		params.Set("address", fmt.Sprintf(c.formatString, string(q)))
		endpoint = c.geocodeAPI
	case Structured:
		for k, v := range q {
			if structuredFields[k] {
				params.Set(k, v)
			}
		}
		endpoint = c.geocodeStructuredAPI
	default:
		return "", nil, eris.Wrapf(ErrQuery, "geocode: unsupported query %T", q)
	}

	params.Set("benchmark", c.benchmark)
	params.Set("format", "json")
	return endpoint, params, nil
}
