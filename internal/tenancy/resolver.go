package tenancy

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/models"
)

const (
	// HeaderTenantID is the explicit per-request tenant header.
	HeaderTenantID = "X-Tenant-ID"
	// TenantIDParam names the tenant field in the query string and JSON body.
	TenantIDParam = "tenant_id"

	maxBodyPeek = 1 << 20
)

// Source records where a tenant identifier was found.
type Source string

const (
	SourceHeader Source = "header"
	SourceQuery  Source = "query"
	SourceBody   Source = "body"
	SourceClaims Source = "claims"
)

// Candidate is an unvalidated tenant identifier.
type Candidate struct {
	Raw    string
	Source Source
}

// ID parses the candidate as a tenant id. Anything that is not a positive
// integer cannot name a tenant.
func (c Candidate) ID() (int64, error) {
	id, err := strconv.ParseInt(c.Raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Wrap(apperr.KindTenantNotFound, "tenant not found", err)
	}
	return id, nil
}

// Resolver extracts the tenant identifier a request names.
type Resolver struct{}

// NewResolver creates a new tenant resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve checks the tenant header, the query string, the JSON body and the
// claims, in that order. The first non-empty value wins. claims may be nil.
func (res *Resolver) Resolve(r *http.Request, claims *models.Claims) (Candidate, error) {
	if v := strings.TrimSpace(r.Header.Get(HeaderTenantID)); v != "" {
		return Candidate{Raw: v, Source: SourceHeader}, nil
	}

	if v := strings.TrimSpace(r.URL.Query().Get(TenantIDParam)); v != "" {
		return Candidate{Raw: v, Source: SourceQuery}, nil
	}

	if v := bodyTenantID(r); v != "" {
		return Candidate{Raw: v, Source: SourceBody}, nil
	}

	if claims != nil && claims.TenantID != nil {
		return Candidate{Raw: strconv.FormatInt(*claims.TenantID, 10), Source: SourceClaims}, nil
	}

	return Candidate{}, apperr.New(apperr.KindMissingTenantIdentifier, "tenant identifier is required")
}

// bodyTenantID peeks at a JSON body for a tenant_id field and restores the
// body so the handler can read it again.
func bodyTenantID(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek+1))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	if err != nil || len(buf) > maxBodyPeek {
		return ""
	}

	var body struct {
		TenantID json.RawMessage `json:"tenant_id"`
	}
	if err := json.Unmarshal(buf, &body); err != nil || len(body.TenantID) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.TenantID, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(body.TenantID, &n); err == nil {
		return n.String()
	}
	return ""
}

type readCloser struct {
	io.Reader
	io.Closer
}
