package proof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	userAgent  = "fid-proofs/1.0"
	proofsPath = "/v1/userNameProofsByFid"

	// maxBodyBytes bounds how much of a response is read; proof lists are small.
	maxBodyBytes = 1 << 20
)

// Sentinel errors carried in Outcome.Err.
var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrMalformedBody    = errors.New("malformed response body")
	ErrBodyTooLarge     = errors.New("response body too large")
	ErrInvalidProof     = errors.New("invalid proof")
)

// Doer sends a request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client builds and parses userNameProofsByFid requests against one hub.
type Client struct {
	baseURL string
}

// HubURL joins scheme, host and port into a base URL.
func HubURL(scheme, host string, port int) string {
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(port)))
}

// NewClient creates a client for the hub at baseURL (e.g. https://hub:2281).
func NewClient(baseURL string) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("hub base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid hub base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid hub base URL %q: scheme and host are required", baseURL)
	}
	return &Client{baseURL: base}, nil
}

// URL returns the proofs endpoint for fid.
func (c *Client) URL(fid uint64) string {
	return c.baseURL + proofsPath + "?fid=" + strconv.FormatUint(fid, 10)
}

// Fetch performs one attempt for fid using h. It never returns a Go error;
// every failure is classified in the Outcome.
func (c *Client) Fetch(ctx context.Context, h Doer, fid uint64) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(fid), nil)
	if err != nil {
		return Outcome{Kind: KindInvalid, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.Do(req)
	if err != nil {
		return Outcome{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Outcome{Kind: KindTransient, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(body) > maxBodyBytes {
		return Outcome{
			Kind:   KindTransient,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, maxBodyBytes),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{
			Kind:   KindTransient,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}

	out := Parse(body)
	out.Status = resp.StatusCode
	return out
}

// Parse classifies a 2xx body shaped like {"proofs":[{"fid":1,"name":"a","owner":"0x.."}]}.
// Only the first proof is used.
func Parse(body []byte) Outcome {
	if !gjson.ValidBytes(body) {
		return Outcome{Kind: KindTransient, Err: ErrMalformedBody}
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return Outcome{Kind: KindInvalid, Err: fmt.Errorf("%w: top-level value is not an object", ErrInvalidProof)}
	}

	proofs := doc.Get("proofs")
	if !proofs.Exists() || proofs.Type == gjson.Null {
		return Outcome{Kind: KindEmpty}
	}
	if !proofs.IsArray() {
		return Outcome{Kind: KindInvalid, Err: fmt.Errorf("%w: proofs is not an array", ErrInvalidProof)}
	}
	first := proofs.Get("0")
	if !first.Exists() {
		return Outcome{Kind: KindEmpty}
	}

	fid, name, owner := first.Get("fid"), first.Get("name"), first.Get("owner")
	switch {
	case fid.Type != gjson.Number:
		return Outcome{Kind: KindInvalid, Err: fmt.Errorf("%w: fid missing or not a number", ErrInvalidProof)}
	case fid.Num < 0:
		return Outcome{Kind: KindInvalid, Err: fmt.Errorf("%w: negative fid %s", ErrInvalidProof, fid.Raw)}
	case !name.Exists():
		return Outcome{Kind: KindInvalid, Err: fmt.Errorf("%w: name missing", ErrInvalidProof)}
	case !owner.Exists():
		return Outcome{Kind: KindInvalid, Err: fmt.Errorf("%w: owner missing", ErrInvalidProof)}
	}

	return Outcome{
		Kind: KindFound,
		Record: AddressRecord{
			FID:   fid.Uint(),
			Name:  name.String(),
			Owner: owner.String(),
		},
	}
}
